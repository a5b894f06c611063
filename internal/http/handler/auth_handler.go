package handler

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/security"
	"github.com/sehyun-p/clubsync/internal/service"
)

const memberEmailNamespace = "member.email"

type AuthHandler struct {
	members       *service.MemberService
	abuseGuard    *service.RedisAuthAbuseGuard
	negativeCache service.NegativeLookupCacheStore
	accessTTL     time.Duration
	secureCookies bool
}

func NewAuthHandler(
	members *service.MemberService,
	abuseGuard *service.RedisAuthAbuseGuard,
	negativeCache service.NegativeLookupCacheStore,
	accessTTL time.Duration,
	secureCookies bool,
) *AuthHandler {
	if negativeCache == nil {
		negativeCache = service.NewNoopNegativeLookupCacheStore()
	}
	return &AuthHandler{
		members:       members,
		abuseGuard:    abuseGuard,
		negativeCache: negativeCache,
		accessTTL:     accessTTL,
		secureCookies: secureCookies,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterMemberInput
	if !decodeJSON(w, r, &in) {
		return
	}
	member, err := h.members.Register(in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// A fresh registration invalidates any cached "unknown email" verdicts.
	if err := h.negativeCache.InvalidateNamespace(r.Context(), memberEmailNamespace); err != nil {
		observability.Audit(r, "auth.negative_cache_invalidate_failed", "error", err.Error())
	}
	observability.Audit(r, "auth.register", "member_id", member.ID)
	response.JSON(w, r, http.StatusCreated, member)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	Member any    `json:"member"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip := clientIP(r)

	if h.abuseGuard != nil {
		cooldown, err := h.abuseGuard.Check(r.Context(), service.AuthAbuseScopeLogin, req.Email, ip)
		if err == nil && cooldown > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cooldown.Seconds())+1))
			response.Error(w, r, http.StatusTooManyRequests, "LOGIN_COOLDOWN", "too many failed attempts", nil)
			return
		}
	}

	// A cached negative verdict short-circuits the bcrypt round trip for
	// emails known not to exist.
	if hit, err := h.negativeCache.Get(r.Context(), memberEmailNamespace, req.Email); err == nil && hit {
		h.recordLoginFailure(r, req.Email, ip)
		writeServiceError(w, r, service.ErrInvalidCredentials)
		return
	}

	token, member, err := h.members.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.recordLoginFailure(r, req.Email, ip)
			if known, kerr := h.members.KnownEmail(req.Email); kerr == nil && !known {
				_ = h.negativeCache.Set(r.Context(), memberEmailNamespace, req.Email, 5*time.Minute)
			}
		}
		writeServiceError(w, r, err)
		return
	}
	if h.abuseGuard != nil {
		_ = h.abuseGuard.Reset(r.Context(), service.AuthAbuseScopeLogin, req.Email, ip)
	}

	csrf, err := security.NewCSRFToken()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	maxAge := int(h.accessTTL.Seconds())
	security.SetSessionCookie(w, "access_token", token, maxAge, h.secureCookies)
	security.SetCSRFCookie(w, csrf, maxAge, h.secureCookies)

	observability.Audit(r, "auth.login", "member_id", member.ID)
	response.JSON(w, r, http.StatusOK, loginResponse{Token: token, Member: member})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	security.SetSessionCookie(w, "access_token", "", -1, h.secureCookies)
	security.SetCSRFCookie(w, "", -1, h.secureCookies)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) recordLoginFailure(r *http.Request, email, ip string) {
	if h.abuseGuard == nil {
		return
	}
	if _, err := h.abuseGuard.RegisterFailure(r.Context(), service.AuthAbuseScopeLogin, email, ip); err != nil {
		observability.Audit(r, "auth.abuse_guard_failed", "error", err.Error())
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
