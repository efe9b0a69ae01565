package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/service"
	"vocabcue/internal/validation"
)

// CollectorHandler serves the response API
type CollectorHandler struct {
	collector *service.CollectorService
	exports   *service.ExportService
	logger    *zap.Logger
}

// NewCollectorHandler creates a new collector handler
func NewCollectorHandler(collector *service.CollectorService, exports *service.ExportService, logger *zap.Logger) *CollectorHandler {
	return &CollectorHandler{
		collector: collector,
		exports:   exports,
		logger:    logging.OrNop(logger),
	}
}

type ackResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func (h *CollectorHandler) respondStoreError(w http.ResponseWriter, err error) {
	var verr validation.ValidationError
	if errors.As(err, &verr) {
		respondJSONError(h.logger, w, http.StatusBadRequest, verr.Error(), err)
		return
	}
	respondJSONError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, err)
}

// PostConsent handles POST /consent
func (h *CollectorHandler) PostConsent(w http.ResponseWriter, r *http.Request) {
	var consent models.Consent
	if err := decodeJSON(w, r, &consent); err != nil {
		respondJSONError(h.logger, w, http.StatusBadRequest, ErrInvalidJSON, err)
		return
	}
	id, err := h.collector.RecordConsent(r.Context(), consent)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ackResponse{Status: "ok", ID: id})
}

// PostResponse handles POST /responses
func (h *CollectorHandler) PostResponse(w http.ResponseWriter, r *http.Request) {
	var event models.ResponseEvent
	if err := decodeJSON(w, r, &event); err != nil {
		respondJSONError(h.logger, w, http.StatusBadRequest, ErrInvalidJSON, err)
		return
	}
	id, err := h.collector.RecordResponse(r.Context(), event)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ackResponse{Status: "ok", ID: id})
}

// Export handles GET /admin/export?format=json|csv&table=responses|consents
func (h *CollectorHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	table := q.Get("table")
	if table == "" {
		table = "responses"
	}
	filter := models.ResponseFilter{
		UserID:   q.Get("user_id"),
		Group:    q.Get("group"),
		PageType: q.Get("page_type"),
	}
	stamp := time.Now().UTC().Format("20060102-150405")

	var err error
	switch {
	case format == "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="export-%s.json"`, stamp))
		err = h.exports.WriteJSON(r.Context(), w, filter)
	case format == "csv" && table == "responses":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="responses-%s.csv"`, stamp))
		err = h.exports.WriteResponsesCSV(r.Context(), w, filter)
	case format == "csv" && table == "consents":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="consents-%s.csv"`, stamp))
		err = h.exports.WriteConsentsCSV(r.Context(), w)
	default:
		respondJSONError(h.logger, w, http.StatusBadRequest, "format must be json or csv and table responses or consents", nil)
		return
	}
	if err != nil {
		// headers may already be out; log only
		h.logger.Error("Export failed", zap.String("format", format), zap.Error(err))
	}
}

// Stats handles GET /admin/stats
func (h *CollectorHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.collector.Stats(r.Context())
	if err != nil {
		respondJSONError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"responses": counts})
}

// Health handles GET /healthz
func (h *CollectorHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
