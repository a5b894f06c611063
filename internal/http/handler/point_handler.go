package handler

import (
	"net/http"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/service"
)

type PointHandler struct {
	points *service.PointService
}

func NewPointHandler(points *service.PointService) *PointHandler {
	return &PointHandler{points: points}
}

// MySummary returns the caller's accumulated penalty total.
func (h *PointHandler) MySummary(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	summary, err := h.points.SummaryFor(memberID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, summary)
}

func (h *PointHandler) MyHistory(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	history, err := h.points.HistoryFor(memberID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, history)
}

// MemberSummary is the operator view of another member's balance.
func (h *PointHandler) MemberSummary(w http.ResponseWriter, r *http.Request) {
	memberID, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.points.SummaryFor(memberID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, summary)
}
