package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"vocabcue/internal/database"
	"vocabcue/internal/models"
)

// ResponseRepository handles database operations for response events
type ResponseRepository struct {
	db database.DBTX
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(db database.DBTX) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Create inserts a response event and returns its ID
func (r *ResponseRepository) Create(ctx context.Context, ev models.ResponseEvent) (int64, error) {
	ratings, err := encodeCounts(ev.Ratings)
	if err != nil {
		return 0, err
	}
	summary, err := encodeCounts(ev.Summary)
	if err != nil {
		return 0, err
	}

	var entry, exit sql.NullTime
	if !ev.EntryTime.IsZero() {
		entry = sql.NullTime{Time: ev.EntryTime.UTC(), Valid: true}
	}
	if !ev.ExitTime.IsZero() {
		exit = sql.NullTime{Time: ev.ExitTime.UTC(), Valid: true}
	}

	query := `
		INSERT INTO responses (user_id, group_name, word, round, page_type, entry_time, exit_time, duration, response, ratings, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		ev.UserID, ev.Group, ev.Word, ev.Round, ev.PageType,
		entry, exit, ev.Duration, nullString(ev.Response), ratings, summary)
	if err != nil {
		return 0, fmt.Errorf("failed to insert response: %w", err)
	}
	return id, nil
}

// List returns responses matching filter in insertion order
func (r *ResponseRepository) List(ctx context.Context, filter models.ResponseFilter) ([]models.StoredResponse, error) {
	var where []string
	var args []interface{}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Group != "" {
		where = append(where, "group_name = ?")
		args = append(args, filter.Group)
	}
	if filter.PageType != "" {
		where = append(where, "page_type = ?")
		args = append(args, filter.PageType)
	}

	query := `
		SELECT id, user_id, group_name, word, round, page_type, entry_time, exit_time,
		       duration, response, ratings, summary, created_at
		FROM responses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var out []models.StoredResponse
	for rows.Next() {
		var (
			s                models.StoredResponse
			entry, exit      sql.NullTime
			createdAt        sql.NullTime
			response         sql.NullString
			ratings, summary sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Group, &s.Word, &s.Round, &s.PageType,
			&entry, &exit, &s.Duration, &response, &ratings, &summary, &createdAt); err != nil {
			return nil, err
		}
		if entry.Valid {
			s.EntryTime = entry.Time.UTC()
		}
		if exit.Valid {
			s.ExitTime = exit.Time.UTC()
		}
		if createdAt.Valid {
			s.CreatedAt = createdAt.Time
		}
		if response.Valid {
			text := response.String
			s.Response = &text
		}
		if s.Ratings, err = decodeCounts(ratings); err != nil {
			return nil, err
		}
		if s.Summary, err = decodeCounts(summary); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByPageType returns how many responses each page type has received
func (r *ResponseRepository) CountByPageType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT page_type, COUNT(*) FROM responses GROUP BY page_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var pageType string
		var n int
		if err := rows.Scan(&pageType, &n); err != nil {
			return nil, err
		}
		counts[pageType] = n
	}
	return counts, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func encodeCounts(m map[string]int) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeCounts(s sql.NullString) (map[string]int, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]int
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to decode stored counts: %w", err)
	}
	return m, nil
}
