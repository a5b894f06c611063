package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuthAbuseScope partitions failure tracking per sensitive flow.
type AuthAbuseScope string

const (
	AuthAbuseScopeLogin    AuthAbuseScope = "login"
	AuthAbuseScopeRegister AuthAbuseScope = "register"
)

// AuthAbusePolicy shapes the exponential cooldown applied to repeated
// authentication failures.
type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

func (p AuthAbusePolicy) normalized() AuthAbusePolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Minute
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = 15 * time.Minute
	}
	return p
}

// RedisAuthAbuseGuard tracks login failures per identity and per source IP,
// applying a growing cooldown once the free attempts are exhausted. State
// lives in Redis hashes that expire after the reset window of inactivity.
type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	if prefix == "" {
		prefix = "auth_abuse"
	}
	return &RedisAuthAbuseGuard{client: client, prefix: prefix, policy: policy.normalized()}
}

// RegisterFailure records one failed attempt and returns the cooldown now in
// effect for this identity/IP pair.
func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	if g.client == nil {
		return 0, nil
	}
	var worst time.Duration
	for _, key := range g.keysFor(scope, identity, ip) {
		cooldown, err := g.registerFailureKey(ctx, key)
		if err != nil {
			return 0, err
		}
		if cooldown > worst {
			worst = cooldown
		}
	}
	return worst, nil
}

// Check returns the remaining cooldown, zero when the caller may proceed.
func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	if g.client == nil {
		return 0, nil
	}
	now := time.Now()
	var worst time.Duration
	for _, key := range g.keysFor(scope, identity, ip) {
		until, err := g.cooldownUntil(ctx, key)
		if err != nil {
			return 0, err
		}
		if remaining := until.Sub(now); remaining > worst {
			worst = remaining
		}
	}
	return worst, nil
}

// Reset clears failure state after a successful attempt.
func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	if g.client == nil {
		return nil
	}
	keys := g.keysFor(scope, identity, ip)
	if len(keys) == 0 {
		return nil
	}
	return g.client.Del(ctx, keys...).Err()
}

func (g *RedisAuthAbuseGuard) registerFailureKey(ctx context.Context, key string) (time.Duration, error) {
	policy := g.policy
	failures, err := g.client.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("record auth failure: %w", err)
	}

	var cooldown time.Duration
	if int(failures) > policy.FreeAttempts {
		exceeded := int(failures) - policy.FreeAttempts
		delay := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(exceeded-1))
		cooldown = time.Duration(delay)
		if cooldown > policy.MaxDelay {
			cooldown = policy.MaxDelay
		}
	}

	now := time.Now()
	pipe := g.client.TxPipeline()
	pipe.HSet(ctx, key,
		"last_failure_ms", strconv.FormatInt(now.UnixMilli(), 10),
		"cooldown_until_ms", strconv.FormatInt(now.Add(cooldown).UnixMilli(), 10),
	)
	pipe.PExpire(ctx, key, policy.ResetWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record auth failure: %w", err)
	}
	return cooldown, nil
}

func (g *RedisAuthAbuseGuard) cooldownUntil(ctx context.Context, key string) (time.Time, error) {
	raw, err := g.client.HGet(ctx, key, "cooldown_until_ms").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read auth abuse state: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse auth abuse state for %s: %w", key, err)
	}
	return time.UnixMilli(ms), nil
}

func (g *RedisAuthAbuseGuard) keysFor(scope AuthAbuseScope, identity, ip string) []string {
	var keys []string
	if identity != "" {
		keys = append(keys, g.stateKey(scope, "id", normalizeAuthIdentity(identity)))
	}
	if ip != "" {
		keys = append(keys, g.stateKey(scope, "ip", ip))
	}
	return keys
}

func (g *RedisAuthAbuseGuard) stateKey(scope AuthAbuseScope, kind, value string) string {
	return fmt.Sprintf("%s:%s:%s:%s", g.prefix, scope, kind, hashToken(value))
}
