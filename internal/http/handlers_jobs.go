// Package httpx provides the HTTP API for the chainscope research job system.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/chainscope/chainscope/internal/service"
)

// JobHandlers provides HTTP handlers for research job operations.
type JobHandlers struct {
	Svc *service.JobService
}

type submitResearchRequest struct {
	Topic string `json:"topic"`
}

// SubmitResearch handles HTTP requests to start a research job for a topic.
func (h *JobHandlers) SubmitResearch(w http.ResponseWriter, r *http.Request) {
	var req submitResearchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("topic is required"),
		})
		return
	}

	job, err := h.Svc.Submit(r.Context(), req.Topic)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	// The job is queued, not done; processing happens asynchronously.
	WriteJSON(w, http.StatusAccepted, job)
}

// GetStatus handles HTTP requests for a job's client-visible status.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Svc.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// Cancel handles HTTP requests to cancel a pending or processing job.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Svc.Cancel(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

// Retry handles HTTP requests to re-run a finished job's topic as a new job.
func (h *JobHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// Stats handles HTTP requests for queue statistics.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
