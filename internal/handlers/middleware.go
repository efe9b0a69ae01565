package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const ParticipantContextKey ContextKey = "participant"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	tokens *security.TokenIssuer
	logger *zap.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(tokens *security.TokenIssuer, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logging.OrNop(logger)}
}

// RequireParticipant requires a valid participant cookie issued for the link code in the path.
// Anyone else is sent to that link's consent page.
func (m *Middleware) RequireParticipant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")

		cookie, err := r.Cookie(security.ParticipantCookie)
		if err != nil {
			http.Redirect(w, r, experiment.ConsentPath(code), http.StatusSeeOther)
			return
		}

		p, err := m.tokens.Parse(cookie.Value)
		if err != nil {
			m.logger.Debug("Rejected participant token", zap.Error(err))
			http.SetCookie(w, security.CreateDeleteCookie(r, security.ParticipantCookie))
			http.Redirect(w, r, experiment.ConsentPath(code), http.StatusSeeOther)
			return
		}
		if p.Code != code {
			http.Redirect(w, r, experiment.ConsentPath(code), http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), ParticipantContextKey, p)
		next(w, r.WithContext(ctx))
	}
}

// GetParticipantFromContext retrieves the participant from the request context
func GetParticipantFromContext(ctx context.Context) (models.Participant, bool) {
	p, ok := ctx.Value(ParticipantContextKey).(models.Participant)
	return p, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade through the logging wrapper
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging middleware logs HTTP requests
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// SecurityHeaders sets the response headers every page carries
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
