package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocabcue/internal/models"
)

func sampleState() *models.SessionState {
	return &models.SessionState{
		Participant: models.Participant{ID: "p-1", Group: "verbal", Code: "v3m8"},
		Progress:    models.Progress{Round: 2, Phase: models.PhaseRecognition, ItemIndex: 1},
		Rounds: map[int][]models.WordItem{
			1: {{Word: "cat", Meaning: "고양이", Round: 1}},
		},
		Status: models.LoadStatusReady,
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "p-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "p-1", sampleState()))

	got, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "verbal", got.Participant.Group)
	assert.Equal(t, 1, got.Progress.ItemIndex)
	assert.Equal(t, "cat", got.Words(1)[0].Word)

	// mutating the returned copy does not change what is stored
	got.Progress.ItemIndex = 9
	again, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Progress.ItemIndex)

	require.NoError(t, store.Delete(ctx, "p-1"))
	_, err = store.Get(ctx, "p-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Hour))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "p-1", sampleState()))
	require.NoError(t, store.Save(ctx, "p-2", sampleState()))

	now = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, "p-1")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, time.Minute))
}

func TestRedisStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, time.Minute)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "p-1", sampleState()))
	assert.True(t, mr.Exists("experiment:session:p-1"))
	assert.Equal(t, time.Minute, mr.TTL("experiment:session:p-1"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "p-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
