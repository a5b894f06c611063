package handler

import (
	"net/http"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/service"
)

type ExcuseHandler struct {
	excuses *service.ExcuseService
}

func NewExcuseHandler(excuses *service.ExcuseService) *ExcuseHandler {
	return &ExcuseHandler{excuses: excuses}
}

func (h *ExcuseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	var in service.ExcuseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	report, err := h.excuses.Submit(memberID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, report)
}

func (h *ExcuseHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	reports, err := h.excuses.ListBySession(sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, reports)
}

// Approve accepts an excuse so finalization maps it onto the softer status.
func (h *ExcuseHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	if err := h.excuses.Approve(id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "excuse.approve", "excuse_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "approved"})
}
