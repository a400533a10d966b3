package api

import (
	"context"
	"net/http"
	"studynotes/internal/auth"
	"studynotes/internal/health"
	"studynotes/internal/note"
	"studynotes/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	NoteService   *note.Service
	Tokens        *auth.TokenManager
	Login         *auth.GoogleLogin // nil disables the /auth/google routes
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	CORSOrigins   []string
	CookieSecure  bool
	Streams       context.Context // event streams end when this is done; nil means never
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.NoteService, cfg.HealthChecker, cfg.Login, cfg.CookieSecure)
	if cfg.Streams != nil {
		handler.streams = cfg.Streams
	}

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	if cfg.Login != nil {
		mux.HandleFunc("GET /auth/google", handler.GoogleLogin)
		mux.HandleFunc("GET /auth/google/callback", handler.GoogleCallback)
	}

	// Note endpoints - bearer token required
	authMiddleware := AuthMiddleware(cfg.Tokens)
	mux.Handle("POST /v1/notes", authMiddleware(http.HandlerFunc(handler.SubmitNote)))
	mux.Handle("GET /v1/notes/{videoId}", authMiddleware(http.HandlerFunc(handler.GetNote)))
	mux.Handle("GET /v1/notes/{videoId}/events", authMiddleware(http.HandlerFunc(handler.NoteEvents)))
	mux.Handle("GET /v1/notes/{videoId}/download", authMiddleware(http.HandlerFunc(handler.DownloadNote)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware(cfg.CORSOrigins)(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
