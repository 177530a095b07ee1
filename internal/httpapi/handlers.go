package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/store"
)

// AnalyzeRequest is the body of POST /analyze. ProductCategory is accepted
// as an alias of Query.
type AnalyzeRequest struct {
	Query           string   `json:"query"`
	ProductCategory string   `json:"product_category,omitempty"`
	Factors         []string `json:"comparison_factors,omitempty"`
}

// AnalyzeResponse is returned by POST /analyze.
type AnalyzeResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// ResumeRequest is the body of POST /tasks/{id}/resume.
type ResumeRequest struct {
	Query string `json:"query"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) welcome(w http.ResponseWriter, _ *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

// analyze handles POST /analyze.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	query := req.Query
	if strings.TrimSpace(query) == "" {
		query = req.ProductCategory
	}

	task, err := h.service.Submit(query, req.Factors)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/status/"+task.ID)
	h.sendJSON(w, http.StatusAccepted, AnalyzeResponse{
		TaskID:    task.ID,
		Status:    store.StatusOf(task.State),
		StatusURL: "/status/" + task.ID,
	})
}

// status handles GET /status/{id}.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Status(r.PathValue("id"))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, view)
}

// list handles GET /tasks?limit=N, newest first.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := h.config.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.sendError(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = n
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"tasks": h.service.List(limit)})
}

// resume handles POST /tasks/{id}/resume.
func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.Resume(r.PathValue("id"), req.Query)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusAccepted, view)
}

// result handles GET /results/{id}.csv.
func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("file"), ".csv")
	if !ok || id == "" {
		h.sendError(w, "not found", http.StatusNotFound)
		return
	}
	csv, err := h.service.Result(id)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csv))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// sendServiceError maps service errors onto HTTP statuses.
func (h *Handler) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, research.ErrNotFound):
		h.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, research.ErrInvalidState):
		h.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, research.ErrEmptyQuery):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("service call failed", zap.Error(err))
		h.sendError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, code int) {
	h.sendJSON(w, code, ErrorResponse{Error: message})
}

func (h *Handler) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to write response", zap.Error(err))
	}
}
