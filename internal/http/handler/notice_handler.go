package handler

import (
	"net/http"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/service"
)

type NoticeHandler struct {
	notices *service.NoticeService
}

func NewNoticeHandler(notices *service.NoticeService) *NoticeHandler {
	return &NoticeHandler{notices: notices}
}

func (h *NoticeHandler) Create(w http.ResponseWriter, r *http.Request) {
	authorID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	var in service.NoticeInput
	if !decodeJSON(w, r, &in) {
		return
	}
	notice, err := h.notices.Create(authorID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, notice)
}

func (h *NoticeHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.notices.List(pageRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *NoticeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	notice, err := h.notices.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, notice)
}

func (h *NoticeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	var in service.NoticeInput
	if !decodeJSON(w, r, &in) {
		return
	}
	notice, err := h.notices.Update(id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, notice)
}

func (h *NoticeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	if err := h.notices.Delete(id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
