package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"vocabcue/internal/database"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/repository"
)

// ExportData is the complete collector dump
type ExportData struct {
	Version    string                  `json:"version"`
	ExportedAt time.Time               `json:"exported_at"`
	Consents   []models.StoredConsent  `json:"consents"`
	Responses  []models.StoredResponse `json:"responses"`
}

// ExportService dumps collected data for analysis
type ExportService struct {
	consents  *repository.ConsentRepository
	responses *repository.ResponseRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService creates a new export service
func NewExportService(db *database.DB, logger *zap.Logger) *ExportService {
	return &ExportService{
		consents:  repository.NewConsentRepository(db),
		responses: repository.NewResponseRepository(db),
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// Collect reads every consent and the responses matching filter
func (s *ExportService) Collect(ctx context.Context, filter models.ResponseFilter) (*ExportData, error) {
	consents, err := s.consents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export consents: %w", err)
	}
	responses, err := s.responses.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to export responses: %w", err)
	}
	if consents == nil {
		consents = []models.StoredConsent{}
	}
	if responses == nil {
		responses = []models.StoredResponse{}
	}
	return &ExportData{
		Version:    "1.0",
		ExportedAt: s.now().UTC(),
		Consents:   consents,
		Responses:  responses,
	}, nil
}

// WriteJSON writes the full dump as indented JSON
func (s *ExportService) WriteJSON(ctx context.Context, w io.Writer, filter models.ResponseFilter) error {
	data, err := s.Collect(ctx, filter)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	s.logger.Info("Exported data",
		zap.Int("consents", len(data.Consents)),
		zap.Int("responses", len(data.Responses)))
	return nil
}

var responseColumns = []string{
	"id", "user_id", "group", "word", "round", "page_type",
	"entry_time", "exit_time", "duration", "response", "ratings", "summary", "created_at",
}

// WriteResponsesCSV writes one row per response. Ratings and summary counts are flattened to key=value pairs.
func (s *ExportService) WriteResponsesCSV(ctx context.Context, w io.Writer, filter models.ResponseFilter) error {
	responses, err := s.responses.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to export responses: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(responseColumns); err != nil {
		return err
	}
	for _, r := range responses {
		response := ""
		if r.Response != nil {
			response = *r.Response
		}
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.UserID,
			r.Group,
			r.Word,
			strconv.Itoa(r.Round),
			r.PageType,
			formatTime(r.EntryTime),
			formatTime(r.ExitTime),
			strconv.Itoa(r.Duration),
			response,
			flattenCounts(r.Ratings),
			flattenCounts(r.Summary),
			formatTime(r.CreatedAt),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	s.logger.Info("Exported responses as CSV", zap.Int("rows", len(responses)))
	return nil
}

// WriteConsentsCSV writes one row per consent
func (s *ExportService) WriteConsentsCSV(ctx context.Context, w io.Writer) error {
	consents, err := s.consents.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to export consents: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "user_id", "name", "email", "group", "consented_at", "receipt_sent"}); err != nil {
		return err
	}
	for _, c := range consents {
		row := []string{
			strconv.FormatInt(c.ID, 10),
			c.UserID,
			c.Name,
			c.Email,
			c.Group,
			formatTime(c.ConsentedAt),
			strconv.FormatBool(c.ReceiptSent),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportToFile writes the JSON dump to outputPath
func (s *ExportService) ExportToFile(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.WriteJSON(ctx, file, models.ResponseFilter{}); err != nil {
		return err
	}
	s.logger.Info("Export written", zap.String("path", outputPath))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func flattenCounts(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Itoa(m[k])
	}
	return strings.Join(parts, ";")
}
