package session

import (
	"context"
	"errors"

	"vocabcue/internal/models"
)

// ErrNotFound is returned when no state exists for a participant
var ErrNotFound = errors.New("session not found")

// Store persists per-participant experiment state
type Store interface {
	Get(ctx context.Context, id string) (*models.SessionState, error)
	Save(ctx context.Context, id string, state *models.SessionState) error
	Delete(ctx context.Context, id string) error
	// Cleanup removes expired state and returns how many entries were dropped
	Cleanup(ctx context.Context) (int, error)
}
