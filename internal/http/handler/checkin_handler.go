package handler

import (
	"net/http"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/service"
)

type CheckInHandler struct {
	checkins *service.CheckInService
}

func NewCheckInHandler(checkins *service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkins: checkins}
}

// IssueToken mints a fresh single-use check-in token for the caller. The
// token is a bearer credential, so caches must never hold the response.
func (h *CheckInHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	issued, err := h.checkins.IssueFor(r.Context(), memberID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, http.StatusOK, issued)
}

type scanRequest struct {
	Token string `json:"token"`
}

// Scan consumes a presented token and records attendance for the open
// session. Operator only.
func (h *CheckInHandler) Scan(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "token is required", nil)
		return
	}
	rec, err := h.checkins.ScanAndRecord(r.Context(), operatorID, req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "checkin.scan", "member_id", rec.MemberID, "session_id", rec.SessionID, "status", string(rec.Status))
	response.JSON(w, r, http.StatusCreated, rec)
}
