package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocabcue/internal/database"
	"vocabcue/internal/models"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), nil))
	return db
}

func TestConsentRepository(t *testing.T) {
	db := setupDB(t)
	repo := NewConsentRepository(db)
	ctx := context.Background()
	consented := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	id, err := repo.Create(ctx, models.Consent{UserID: "p-1", Name: "Kim", Email: "kim@example.com", Group: "keyword", ConsentedAt: consented})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := repo.GetByUserID(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kim", got.Name)
	assert.Equal(t, "keyword", got.Group)
	assert.True(t, consented.Equal(got.ConsentedAt))
	assert.False(t, got.ReceiptSent)

	require.NoError(t, repo.MarkReceiptSent(ctx, id))
	got, err = repo.GetByUserID(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, got.ReceiptSent)

	missing, err := repo.GetByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConsentRepositoryRejectsSecondRow(t *testing.T) {
	db := setupDB(t)
	repo := NewConsentRepository(db)
	ctx := context.Background()
	consent := models.Consent{UserID: "p-1", Name: "Kim", Email: "kim@example.com", Group: "keyword", ConsentedAt: time.Now()}

	_, err := repo.Create(ctx, consent)
	require.NoError(t, err)

	consent.Name = "Kim again"
	_, err = repo.Create(ctx, consent)
	assert.ErrorIs(t, err, ErrDuplicateConsent)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Kim", all[0].Name)
}

func TestResponseRepository(t *testing.T) {
	db := setupDB(t)
	repo := NewResponseRepository(db)
	ctx := context.Background()
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	answer := "고양이"

	events := []models.ResponseEvent{
		{UserID: "p-1", Group: "verbal", Word: "cat", Round: 1, PageType: "learning", EntryTime: entry, ExitTime: entry.Add(30 * time.Second), Duration: 30},
		{UserID: "p-1", Group: "verbal", Word: "cat", Round: 1, PageType: "recognition", EntryTime: entry, ExitTime: entry.Add(4 * time.Second), Duration: 4, Response: &answer},
		{UserID: "p-1", Group: "verbal", Word: "cat", PageType: "survey", EntryTime: entry, ExitTime: entry, Ratings: map[string]int{"familiarity": 4}},
		{UserID: "p-2", Group: "control", PageType: models.PageTypeFinalSummary, Summary: map[string]int{"learning": 9}},
	}
	for _, ev := range events {
		_, err := repo.Create(ctx, ev)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, models.ResponseFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	assert.Nil(t, all[0].Response)
	require.NotNil(t, all[1].Response)
	assert.Equal(t, "고양이", *all[1].Response)
	assert.True(t, entry.Add(4*time.Second).Equal(all[1].ExitTime))
	assert.Equal(t, map[string]int{"familiarity": 4}, all[2].Ratings)
	assert.Equal(t, map[string]int{"learning": 9}, all[3].Summary)
	assert.True(t, all[3].EntryTime.IsZero())

	filtered, err := repo.List(ctx, models.ResponseFilter{UserID: "p-1", PageType: "recognition"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 4, filtered[0].Duration)

	counts, err := repo.CountByPageType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"learning": 1, "recognition": 1, "survey": 1, "final_summary": 1}, counts)
}
