package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/service"
	"vocabcue/internal/stage"
)

const (
	writeWait  = 10 * time.Second
	maxMessage = 4 << 10
)

// StageHandler connects a phase page to its stage runner over a WebSocket
type StageHandler struct {
	experiments *service.ExperimentService
	upgrader    websocket.Upgrader
	interval    time.Duration
	logger      *zap.Logger
}

// NewStageHandler creates a stage handler; interval is the timer tick, one second in production
func NewStageHandler(experiments *service.ExperimentService, interval time.Duration, logger *zap.Logger) *StageHandler {
	return &StageHandler{
		experiments: experiments,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		interval: interval,
		logger:   logging.OrNop(logger),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS runs one phase for the participant until the list is done or the page goes away
func (h *StageHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	p, ok := GetParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}
	round, phase, ok := phaseFromRequest(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	runner, release, err := h.experiments.OpenStage(r.Context(), p, round, phase, h.interval)
	switch {
	case errors.Is(err, service.ErrNotReached):
		http.Error(w, "phase not reached", http.StatusConflict)
		return
	case errors.Is(err, service.ErrStageBusy):
		http.Error(w, "phase already open in another window", http.StatusConflict)
		return
	case errors.Is(err, experiment.ErrContentLoad):
		respondWithError(h.logger, w, http.StatusServiceUnavailable, ErrContentUnavailable, "Stage content unavailable", err)
		return
	case err != nil:
		respondWithError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, "Failed to open stage", err)
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessage)

	logger := h.logger.With(zap.String("participant", p.ID), zap.String("phase", string(phase)), zap.Int("round", round))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Stage runner stopped", zap.Error(err))
		}
	}()

	// the writer is the only goroutine that writes to conn
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range runner.Events() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("ws write error", zap.Error(err))
				cancel()
				break
			}
		}
		// drain so Run never blocks on a dead socket
		for range runner.Events() {
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// unblock the reader if the client never answers the close
		_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var input stage.Input
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &input); err != nil {
				logger.Debug("Ignoring malformed stage message", zap.Error(err))
				continue
			}
		}
		switch inbound.Type {
		case "advance":
			runner.Advance(input)
		case "draft":
			runner.SetDraft(input)
		default:
			logger.Debug("Ignoring unsupported stage message", zap.String("type", inbound.Type))
		}
	}

	cancel()
	<-runDone
	<-writerDone
}
