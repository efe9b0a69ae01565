package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vocabcue/internal/database"
	"vocabcue/internal/models"
)

// ErrDuplicateConsent is returned by Create when the participant already has a consent row
var ErrDuplicateConsent = errors.New("consent already recorded")

// ConsentRepository handles database operations for consent records
type ConsentRepository struct {
	db database.DBTX
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db database.DBTX) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Create inserts a consent record and returns its ID
func (r *ConsentRepository) Create(ctx context.Context, c models.Consent) (int64, error) {
	query := `
		INSERT INTO consents (user_id, name, email, group_name, consented_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, c.UserID, c.Name, c.Email, c.Group, c.ConsentedAt.UTC())
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return 0, ErrDuplicateConsent
		}
		return 0, fmt.Errorf("failed to insert consent: %w", err)
	}
	return id, nil
}

// MarkReceiptSent flags that the consent receipt email went out
func (r *ConsentRepository) MarkReceiptSent(ctx context.Context, id int64) error {
	query := fmt.Sprintf("UPDATE consents SET receipt_sent = %s WHERE id = ?", r.db.GetDialect().BoolValue(true))
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// GetByUserID returns the latest consent for a participant
func (r *ConsentRepository) GetByUserID(ctx context.Context, userID string) (*models.StoredConsent, error) {
	query := `
		SELECT id, user_id, name, email, group_name, consented_at, receipt_sent, created_at
		FROM consents
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	c, err := scanConsent(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// List returns every consent in insertion order
func (r *ConsentRepository) List(ctx context.Context) ([]models.StoredConsent, error) {
	query := `
		SELECT id, user_id, name, email, group_name, consented_at, receipt_sent, created_at
		FROM consents
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var out []models.StoredConsent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsent(row rowScanner) (*models.StoredConsent, error) {
	c := &models.StoredConsent{}
	var createdAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Group, &c.ConsentedAt, &c.ReceiptSent, &createdAt)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	c.ConsentedAt = c.ConsentedAt.In(time.UTC)
	return c, nil
}
