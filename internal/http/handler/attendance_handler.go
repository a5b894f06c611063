package handler

import (
	"net/http"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type AttendanceHandler struct {
	attendance repository.AttendanceRepository
}

func NewAttendanceHandler(attendance repository.AttendanceRepository) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// ListBySession is the operator roll-call view for one session.
func (h *AttendanceHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	records, err := h.attendance.ListBySession(sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, records)
}

// MyAttendance returns the caller's own attendance history.
func (h *AttendanceHandler) MyAttendance(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	records, err := h.attendance.ListByMember(memberID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, records)
}
