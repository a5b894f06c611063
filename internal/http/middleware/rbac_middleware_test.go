package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func requestWithRole(t *testing.T, role string) *http.Request {
	t.Helper()
	jwtMgr := newJWTManagerForTest()
	token, err := jwtMgr.SignAccessToken(1, role, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/members", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func roleProtectedHandler(roles ...string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return AuthMiddleware(newJWTManagerForTest())(RequireRole(roles...)(next))
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	rr := httptest.NewRecorder()
	roleProtectedHandler("operator", "admin").ServeHTTP(rr, requestWithRole(t, "operator"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for operator, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsInsufficientRole(t *testing.T) {
	rr := httptest.NewRecorder()
	roleProtectedHandler("admin").ServeHTTP(rr, requestWithRole(t, "member"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", rr.Code)
	}
}

func TestRequireRoleWithoutAuthContext(t *testing.T) {
	h := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/members", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", rr.Code)
	}
}
