package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doLimited(t *testing.T, h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLocalLimiterDeniesOverBudget(t *testing.T) {
	h := NewRateLimiter(2, time.Minute).Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rr := doLimited(t, h, "10.0.0.1:1234"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := doLimited(t, h, "10.0.0.1:1234")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining header = %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestLocalLimiterKeysPerClient(t *testing.T) {
	h := NewRateLimiter(1, time.Minute).Middleware()(okHandler())

	if rr := doLimited(t, h, "10.0.0.1:1234"); rr.Code != http.StatusOK {
		t.Fatalf("first client: got %d", rr.Code)
	}
	if rr := doLimited(t, h, "10.0.0.2:1234"); rr.Code != http.StatusOK {
		t.Fatalf("second client must have its own budget, got %d", rr.Code)
	}
	if rr := doLimited(t, h, "10.0.0.1:1234"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("first client over budget: got %d", rr.Code)
	}
}

func TestRedisLimiterSharesBudgetAcrossInstances(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := NewRedisRateLimiter(client, "scan", 2, time.Minute, nil).Middleware()(okHandler())
	b := NewRedisRateLimiter(client, "scan", 2, time.Minute, nil).Middleware()(okHandler())

	if rr := doLimited(t, a, "10.0.0.9:1"); rr.Code != http.StatusOK {
		t.Fatalf("instance a: got %d", rr.Code)
	}
	if rr := doLimited(t, b, "10.0.0.9:1"); rr.Code != http.StatusOK {
		t.Fatalf("instance b: got %d", rr.Code)
	}
	if rr := doLimited(t, a, "10.0.0.9:1"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("shared budget exhausted: got %d", rr.Code)
	}
}

func TestRedisLimiterFailsOpenWhenBackendDown(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	server.Close()

	h := NewRedisRateLimiter(client, "auth", 1, time.Minute, nil).Middleware()(okHandler())
	for i := 0; i < 3; i++ {
		if rr := doLimited(t, h, "10.0.0.3:9"); rr.Code != http.StatusOK {
			t.Fatalf("request %d must pass when limiter backend is down, got %d", i, rr.Code)
		}
	}
}

func TestBypassEvaluatorSkipsEnforcement(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute).
		WithBypassEvaluator(func(r *http.Request) (bool, string) {
			return r.Header.Get("X-Probe") == "1", "internal_probe"
		})
	h := limiter.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		req.RemoteAddr = "10.0.0.4:9"
		req.Header.Set("X-Probe", "1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("bypassed request %d: got %d", i, rr.Code)
		}
	}
}

func TestSubjectOrIPKeyFunc(t *testing.T) {
	jwtMgr := newJWTManagerForTest()
	keyFunc := SubjectOrIPKeyFunc(jwtMgr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	if got := keyFunc(req); got != "ip:10.0.0.5" {
		t.Fatalf("anonymous key = %q", got)
	}

	token, err := jwtMgr.SignAccessToken(42, "MEMBER", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if got := keyFunc(req); got != "subject:42" {
		t.Fatalf("authed key = %q", got)
	}
}
