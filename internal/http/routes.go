package httpx

import (
	"log/slog"
	"net/http"

	"github.com/chainscope/chainscope/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs    *service.JobService
	Reports *service.ReportService
	Logger  *slog.Logger // Logger for request logging and panic recovery (optional)
}

// NewRouter creates and configures a new HTTP router for the JSON API.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	reportHandlers := &ReportHandlers{Svc: services.Reports}

	mux.Handle("POST /api/research", http.HandlerFunc(jobHandlers.SubmitResearch))
	mux.Handle("GET /api/jobs/{id}/status", http.HandlerFunc(jobHandlers.GetStatus))
	mux.Handle("POST /api/jobs/{id}/cancel", http.HandlerFunc(jobHandlers.Cancel))
	mux.Handle("POST /api/jobs/{id}/retry", http.HandlerFunc(jobHandlers.Retry))
	mux.Handle("GET /api/jobs/stats", http.HandlerFunc(jobHandlers.Stats))
	mux.Handle("GET /api/reports/{id}", http.HandlerFunc(reportHandlers.Get))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
