package httpx

import (
	"net/http"

	"github.com/chainscope/chainscope/internal/service"
)

// ReportHandlers provides HTTP handlers for report retrieval.
type ReportHandlers struct {
	Svc *service.ReportService
}

// Get handles HTTP requests for a persisted research report.
func (h *ReportHandlers) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, report)
}
