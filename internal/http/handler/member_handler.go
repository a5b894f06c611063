package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/service"
)

const memberListNamespace = "admin.members"

type MemberHandler struct {
	members   *service.MemberService
	listCache service.AdminListCacheStore
	listTTL   time.Duration
}

func NewMemberHandler(members *service.MemberService, listCache service.AdminListCacheStore) *MemberHandler {
	return &MemberHandler{members: members, listCache: listCache, listTTL: 30 * time.Second}
}

func (h *MemberHandler) Me(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	member, err := h.members.GetByID(memberID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, member)
}

type updateProfileRequest struct {
	Name       string `json:"name"`
	Generation int    `json:"generation"`
}

func (h *MemberHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.members.UpdateProfile(memberID, req.Name, req.Generation)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, member)
}

// CompleteOnboarding flips the caller into the expected-attendee set.
func (h *MemberHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	memberID, ok := authedMemberID(w, r)
	if !ok {
		return
	}
	if err := h.members.CompleteOnboarding(memberID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.invalidateListCache(r)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "onboarded"})
}

// List serves the operator roster view through the Redis list cache.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	req := pageRequest(r)
	cacheKey := fmt.Sprintf("page=%d:size=%d", req.Page, req.PageSize)

	if h.listCache != nil {
		if payload, ok, age, err := h.listCache.GetWithAge(r.Context(), memberListNamespace, cacheKey); err == nil && ok {
			w.Header().Set("X-Cache", "hit")
			w.Header().Set("Age", fmt.Sprintf("%d", int(age.Seconds())))
			response.JSON(w, r, http.StatusOK, json.RawMessage(payload))
			return
		}
	}

	page, err := h.members.List(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.listCache != nil {
		if payload, err := json.Marshal(page); err == nil {
			_ = h.listCache.Set(r.Context(), memberListNamespace, cacheKey, payload, h.listTTL)
		}
	}
	response.JSON(w, r, http.StatusOK, page)
}

// Approve admits a pending member. Admin only.
func (h *MemberHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(w, r, "id")
	if !ok {
		return
	}
	if err := h.members.Approve(id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.invalidateListCache(r)
	observability.Audit(r, "member.approve", "member_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *MemberHandler) invalidateListCache(r *http.Request) {
	if h.listCache == nil {
		return
	}
	if err := h.listCache.InvalidateNamespace(r.Context(), memberListNamespace); err != nil {
		observability.Audit(r, "member.list_cache_invalidate_failed", "error", err.Error())
	}
}
