package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Batch BatchAPI
	// Verifier checks bearer tokens on /api routes. Nil disables authentication.
	Verifier     *TokenVerifier
	Readiness    []ReadinessCheck
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()
	batch := &BatchHandlers{Svc: services.Batch, Logger: logger}
	registerBatchRoutes(mux, batch, RequireBearer(services.Verifier, logger))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Readiness, logger))

	var h http.Handler = mux
	h = LimitBody(services.MaxBodyBytes)(h)
	h = Recover(logger)(h)
	h = Logging(logger)(h)
	return h
}

func registerBatchRoutes(mux *http.ServeMux, h *BatchHandlers, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/batch", auth(http.HandlerFunc(h.StartBatchJob)))
	mux.Handle("GET /api/batch", auth(http.HandlerFunc(h.GetAllBatchJobs)))
	mux.Handle("POST /api/batch/status", auth(http.HandlerFunc(h.GetBatchStatus)))
	mux.Handle("POST /api/batch/cancel", auth(http.HandlerFunc(h.CancelBatchJob)))
	mux.Handle("POST /api/batch/job", auth(http.HandlerFunc(h.GetBatchJob)))
}
