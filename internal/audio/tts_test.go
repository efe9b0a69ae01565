package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocabcue/internal/models"
)

func TestFilename(t *testing.T) {
	assert.Equal(t, "word_ice_cream.mp3", Filename(" Ice Cream "))
	assert.Equal(t, "word_well-known.mp3", Filename("well-known"))
	assert.Equal(t, "word_etc.mp3", Filename("../etc"))
}

func TestBatchGenerateAudio(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("q") == "broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "en", r.URL.Query().Get("tl"))
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	svc := NewTTSService(dir, srv.URL, "en", nil)

	records := []models.WordRecord{
		{Word: "cat"},
		{Word: "Cat"},
		{Word: "dog", AudioPath: "/static/audio/dog.mp3"},
		{Word: "broken"},
		{Word: "sun"},
	}

	result, err := svc.BatchGenerateAudio(context.Background(), records, 2)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"cat": "/static/audio/word_cat.mp3",
		"sun": "/static/audio/word_sun.mp3",
	}, result.Generated)
	assert.Equal(t, 2, result.Skipped)
	assert.Contains(t, result.Failed, "broken")
	assert.EqualValues(t, 3, hits.Load())

	data, err := os.ReadFile(filepath.Join(dir, "word_cat.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3-fake-mp3", string(data))

	url, ok := svc.Existing("cat")
	assert.True(t, ok)
	assert.Equal(t, "/static/audio/word_cat.mp3", url)
	_, ok = svc.Existing("broken")
	assert.False(t, ok)

	// a second run reuses files on disk
	_, err = svc.BatchGenerateAudio(context.Background(), records[:1], 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
}

func TestBatchGenerateAudioReportsCallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()
	svc := NewTTSService(t.TempDir(), srv.URL, "en", nil)

	// a finished batch is not an error
	result, err := svc.BatchGenerateAudio(context.Background(), []models.WordRecord{{Word: "moon"}}, 1)
	require.NoError(t, err)
	assert.Len(t, result.Generated, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.BatchGenerateAudio(ctx, []models.WordRecord{{Word: "star"}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
