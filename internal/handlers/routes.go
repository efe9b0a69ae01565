package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"vocabcue/internal/security"
)

// ExperimentRoutes registers the participant-facing pages and stage sockets
func ExperimentRoutes(mux *http.ServeMux, pages *ExperimentHandler, stages *StageHandler, middleware *Middleware, staticDir string) {
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/invalid", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /invalid", pages.ShowInvalid)
	mux.HandleFunc("GET /e/{code}", pages.Entry)
	mux.HandleFunc("GET /e/{code}/consent", pages.ShowConsent)
	mux.HandleFunc("POST /e/{code}/consent", pages.SubmitConsent)

	mux.HandleFunc("GET /e/{code}/instructions", middleware.RequireParticipant(pages.ShowInstructions))
	mux.HandleFunc("GET /e/{code}/round/{round}/{phase}", middleware.RequireParticipant(pages.ShowLanding))
	mux.HandleFunc("GET /e/{code}/round/{round}/{phase}/play", middleware.RequireParticipant(pages.ShowPlay))
	mux.HandleFunc("GET /e/{code}/round/{round}/{phase}/ws", middleware.RequireParticipant(stages.ServeWS))
	mux.HandleFunc("GET /e/{code}/survey", middleware.RequireParticipant(pages.ShowLanding))
	mux.HandleFunc("GET /e/{code}/survey/play", middleware.RequireParticipant(pages.ShowPlay))
	mux.HandleFunc("GET /e/{code}/survey/ws", middleware.RequireParticipant(stages.ServeWS))
	mux.HandleFunc("GET /e/{code}/complete", middleware.RequireParticipant(pages.ShowComplete))
}

// CollectorRoutes registers the response API. Writes are rate limited per client IP;
// the admin endpoints require basic auth.
func CollectorRoutes(mux *http.ServeMux, h *CollectorHandler, limiter *security.RateLimiter, adminUser, adminHash string) {
	mux.Handle("POST /consent", limiter.Middleware(http.HandlerFunc(h.PostConsent)))
	mux.Handle("POST /responses", limiter.Middleware(http.HandlerFunc(h.PostResponse)))
	mux.HandleFunc("GET /healthz", h.Health)

	mux.Handle("GET /admin/export", security.BasicAuth("collector", adminUser, adminHash, http.HandlerFunc(h.Export)))
	mux.Handle("GET /admin/stats", security.BasicAuth("collector", adminUser, adminHash, http.HandlerFunc(h.Stats)))
}

// Wrap applies the middleware shared by both servers
func Wrap(handler http.Handler, logger *zap.Logger) http.Handler {
	return Logging(logger)(SecurityHeaders(handler))
}
