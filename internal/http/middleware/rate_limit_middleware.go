package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/security"
)

// RateLimitPolicy is the budget applied per key per window.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

// Decision is one limiter verdict for one request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter counts requests per key. Implementations must be safe for
// concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

// RateLimiter enforces a policy over a Limiter and answers 429 with the
// standard rate limit headers. Limiter errors fail open: availability of the
// API wins over strict enforcement, and every bypass is recorded.
type RateLimiter struct {
	limiter Limiter
	policy  RateLimitPolicy
	keyFunc func(r *http.Request) string
	scope   string
	mode    string
	bypass  BypassEvaluator
}

// NewRateLimiter builds an in-process limiter keyed by client IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithKey(limit, window, clientIPKey)
}

// NewRateLimiterWithKey builds an in-process limiter with a custom key.
func NewRateLimiterWithKey(limit int, window time.Duration, keyFunc func(r *http.Request) string) *RateLimiter {
	return &RateLimiter{
		limiter: newLocalWindowLimiter(),
		policy:  normalizePolicy(RateLimitPolicy{Limit: limit, Window: window}),
		keyFunc: keyFunc,
		scope:   "api",
		mode:    "local",
	}
}

// NewRedisRateLimiter builds a limiter whose counters live in Redis, so every
// replica enforces one shared budget.
func NewRedisRateLimiter(client redis.UniversalClient, scope string, limit int, window time.Duration, keyFunc func(r *http.Request) string) *RateLimiter {
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	return &RateLimiter{
		limiter: &redisWindowLimiter{client: client, scope: scope},
		policy:  normalizePolicy(RateLimitPolicy{Limit: limit, Window: window}),
		keyFunc: keyFunc,
		scope:   scope,
		mode:    "distributed",
	}
}

// WithScope overrides the scope label used in metrics and Redis keys.
func (rl *RateLimiter) WithScope(scope string) *RateLimiter {
	rl.scope = scope
	return rl
}

// WithBypassEvaluator installs a hook that can exempt a request entirely,
// e.g. for internal health probes.
func (rl *RateLimiter) WithBypassEvaluator(bypass BypassEvaluator) *RateLimiter {
	rl.bypass = bypass
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if rl.bypass != nil {
				if skip, reason := rl.bypass(r); skip {
					observability.RecordSecurityBypassEvent(ctx, reason, rl.scope)
					next.ServeHTTP(w, r)
					return
				}
			}

			key := rl.keyFunc(r)
			decision, err := rl.limiter.Allow(ctx, key, rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(ctx, rl.scope, "error_open", rl.mode, rateLimitKeyType(key))
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w.Header(), rl.policy.Limit, decision.Remaining, decision.ResetAt)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(ctx, rl.scope, "deny", rl.mode, rateLimitKeyType(key))
				observability.RecordRateLimitRetryAfter(ctx, rl.scope, "window_exhausted", decision.RetryAfter)
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}

			observability.RecordRateLimitDecision(ctx, rl.scope, "allow", rl.mode, rateLimitKeyType(key))
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectOrIPKeyFunc keys the limit on the authenticated member when a valid
// token is present, so one member behind a shared NAT cannot starve the rest.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		if jwtMgr != nil {
			if subject := requestSubject(r, jwtMgr); subject != "" {
				return "subject:" + subject
			}
		}
		return clientIPKey(r)
	}
}

func clientIPKey(r *http.Request) string {
	if ip := parseRequestIP(r); ip != nil {
		return "ip:" + ip.String()
	}
	return "ip:unknown"
}

func rateLimitKeyType(key string) string {
	if len(key) > 8 && key[:8] == "subject:" {
		return "subject"
	}
	return "ip"
}

func normalizePolicy(p RateLimitPolicy) RateLimitPolicy {
	if p.Limit <= 0 {
		p.Limit = 60
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

func retryAfterHeader(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func writeRateLimitHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// localWindowLimiter is a fixed-window counter held in process memory.
// Windows are pruned lazily on access.
type localWindowLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	count    int
	windowAt time.Time
}

func newLocalWindowLimiter() *localWindowLimiter {
	return &localWindowLimiter{buckets: make(map[string]*localBucket)}
}

func (l *localWindowLimiter) Allow(_ context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowAt) >= policy.Window {
		b = &localBucket{windowAt: now}
		l.buckets[key] = b
	}
	resetAt := b.windowAt.Add(policy.Window)
	if b.count >= policy.Limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: time.Until(resetAt), ResetAt: resetAt}, nil
	}
	b.count++
	return Decision{Allowed: true, Remaining: policy.Limit - b.count, ResetAt: resetAt}, nil
}

// redisWindowLimiter keeps fixed-window counters in Redis. INCR and the
// expiry are applied in one script so a crashed client cannot leave a counter
// without a TTL.
var redisWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

type redisWindowLimiter struct {
	client redis.UniversalClient
	scope  string
}

func (l *redisWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.scope, key)
	res, err := redisWindowScript.Run(ctx, l.client, []string{redisKey},
		strconv.FormatInt(policy.Window.Milliseconds(), 10)).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected limiter reply of length %d", len(res))
	}
	count, ttlMs := int(res[0]), res[1]
	resetAt := time.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	if count > policy.Limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: time.Duration(ttlMs) * time.Millisecond, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: policy.Limit - count, ResetAt: resetAt}, nil
}
