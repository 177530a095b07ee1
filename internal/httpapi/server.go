// Package httpapi exposes research tasks over HTTP.
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/store"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the Agentic Procurement Analysis API"

// TaskService is the part of the orchestrator service the API calls.
type TaskService interface {
	Submit(query string, factors []string) (research.Task, error)
	Status(id string) (store.View, error)
	Resume(id, query string) (store.View, error)
	List(limit int) []store.View
	Result(id string) (string, error)
}

// Config configures the handler.
type Config struct {
	APIKey         string // Required X-API-Key value; empty disables the check
	DefaultLimit   int    // Page size of GET /tasks without ?limit (default 50)
	MaxRequestBody int64  // Default 1 MiB
}

// Handler routes API requests.
type Handler struct {
	service TaskService
	config  Config
	logger  *zap.Logger
	mux     *http.ServeMux
}

// NewHandler creates the API handler with request logging and API key
// checks applied. /healthz and /metrics are never behind the key.
func NewHandler(service TaskService, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 1 << 20
	}

	h := &Handler{
		service: service,
		config:  cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	auth := h.requireAPIKey
	h.mux.HandleFunc("GET /{$}", h.welcome)
	h.mux.Handle("POST /analyze", auth(http.HandlerFunc(h.analyze)))
	h.mux.Handle("GET /status/{id}", auth(http.HandlerFunc(h.status)))
	h.mux.Handle("GET /tasks", auth(http.HandlerFunc(h.list)))
	h.mux.Handle("POST /tasks/{id}/resume", auth(http.HandlerFunc(h.resume)))
	h.mux.Handle("GET /results/{file}", auth(http.HandlerFunc(h.result)))
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logRequests(h.mux).ServeHTTP(w, r)
}
