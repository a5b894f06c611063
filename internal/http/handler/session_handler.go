package handler

import (
	"net/http"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/service"
)

type SessionHandler struct {
	sessions  *service.SessionService
	finalizer *service.AttendanceFinalizer
}

func NewSessionHandler(sessions *service.SessionService, finalizer *service.AttendanceFinalizer) *SessionHandler {
	return &SessionHandler{sessions: sessions, finalizer: finalizer}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.SessionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := h.sessions.Create(in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.create", "session_id", session.ID)
	response.JSON(w, r, http.StatusCreated, session)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.sessions.List(pageRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.sessions.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, session)
}

// UpdateTiming changes a session's schedule; the finalize timer re-arms off
// the committed values.
func (h *SessionHandler) UpdateTiming(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	var in service.SessionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := h.sessions.UpdateTiming(id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.update_timing", "session_id", session.ID)
	response.JSON(w, r, http.StatusOK, session)
}

// Finalize lets an admin close the books immediately instead of waiting for
// the scheduled boundary.
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	if err := h.finalizer.Finalize(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.finalize", "session_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "finalized"})
}
