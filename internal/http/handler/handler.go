package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sehyun-p/clubsync/internal/http/middleware"
	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/repository"
	"github.com/sehyun-p/clubsync/internal/service"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed json body", nil)
		return false
	}
	return true
}

func urlParamID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

// authedMemberID resolves the caller's member id from the JWT claims placed
// in context by AuthMiddleware.
func authedMemberID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return 0, false
	}
	id, err := service.ParseMemberID(claims.Subject)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "malformed subject", nil)
		return 0, false
	}
	return id, true
}

func pageRequest(r *http.Request) repository.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return repository.PageRequest{Page: page, PageSize: pageSize}
}

// writeServiceError maps domain and service errors onto the response
// envelope; anything unmapped becomes a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var violations *service.FieldViolations
	switch {
	case errors.As(err, &violations):
		response.Error(w, r, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "validation failed", violations.Fields)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, r, http.StatusConflict, "EMAIL_TAKEN", "email already registered", nil)
	case errors.Is(err, service.ErrSessionNotOpen):
		response.Error(w, r, http.StatusConflict, "SESSION_NOT_OPEN", "no session currently accepts check-ins", nil)
	case errors.Is(err, service.ErrTokenInvalid):
		response.Error(w, r, http.StatusUnprocessableEntity, "TOKEN_INVALID", "check-in token unknown or expired", nil)
	case errors.Is(err, service.ErrScanRaced):
		response.Error(w, r, http.StatusConflict, "TOKEN_CONSUMED", "check-in token already consumed", nil)
	case errors.Is(err, service.ErrAlreadyRecorded):
		response.Error(w, r, http.StatusConflict, "ALREADY_RECORDED", "attendance already recorded for this session", nil)
	case errors.Is(err, service.ErrTokenStoreUnavailable):
		response.Error(w, r, http.StatusServiceUnavailable, "TOKEN_STORE_UNAVAILABLE", "check-in token store unavailable", nil)
	case errors.Is(err, repository.ErrAlreadyFinalized):
		response.Error(w, r, http.StatusConflict, "SESSION_FINALIZED", "session is already finalized", nil)
	case errors.Is(err, repository.ErrDuplicateExcuse):
		response.Error(w, r, http.StatusConflict, "EXCUSE_EXISTS", "excuse report already submitted", nil)
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrMemberNotFound),
		errors.Is(err, repository.ErrExcuseNotFound),
		errors.Is(err, repository.ErrNoticeNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
