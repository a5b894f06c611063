package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type IdempotencyState string

const (
	IdempotencyStateNew        IdempotencyState = "new"
	IdempotencyStateInProgress IdempotencyState = "in_progress"
	IdempotencyStateConflict   IdempotencyState = "conflict"
	IdempotencyStateReplay     IdempotencyState = "replay"
)

// CachedHTTPResponse is the replayable result of a completed idempotent
// request.
type CachedHTTPResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type IdempotencyBeginResult struct {
	State  IdempotencyState
	Cached *CachedHTTPResponse
}

// IdempotencyStore lets mutating endpoints claim an idempotency key once and
// replay the stored response on retries.
type IdempotencyStore interface {
	Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error)
	Complete(ctx context.Context, scope, key, fingerprint string, resp CachedHTTPResponse, ttl time.Duration) error
}

type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = "idempotency"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

// beginScript claims the key atomically: the first caller becomes the owner
// and later callers observe the recorded state.
var beginScript = redis.NewScript(`
local existing = redis.call('HGETALL', KEYS[1])
if #existing == 0 then
	redis.call('HSET', KEYS[1], 'fingerprint', ARGV[1], 'status', 'in_progress')
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return {'__claimed__'}
end
return existing
`)

func (s *RedisIdempotencyStore) Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error) {
	raw, err := beginScript.Run(ctx, s.client, []string{s.redisKey(scope, key)},
		fingerprint, ttl.Milliseconds()).Slice()
	if err != nil {
		return IdempotencyBeginResult{}, fmt.Errorf("begin idempotent request: %w", err)
	}
	if len(raw) == 1 && raw[0] == "__claimed__" {
		return IdempotencyBeginResult{State: IdempotencyStateNew}, nil
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, _ := raw[i].(string)
		v, _ := raw[i+1].(string)
		fields[k] = v
	}
	if fields["fingerprint"] != fingerprint {
		return IdempotencyBeginResult{State: IdempotencyStateConflict}, nil
	}
	switch fields["status"] {
	case "in_progress":
		return IdempotencyBeginResult{State: IdempotencyStateInProgress}, nil
	case "completed":
		status, err := strconv.Atoi(fields["response_status"])
		if err != nil {
			return IdempotencyBeginResult{}, fmt.Errorf("parse replay status: %w", err)
		}
		body, err := base64.StdEncoding.DecodeString(fields["response_body"])
		if err != nil {
			return IdempotencyBeginResult{}, fmt.Errorf("decode replay body: %w", err)
		}
		return IdempotencyBeginResult{
			State: IdempotencyStateReplay,
			Cached: &CachedHTTPResponse{
				StatusCode:  status,
				ContentType: fields["content_type"],
				Body:        body,
			},
		}, nil
	default:
		return IdempotencyBeginResult{}, fmt.Errorf("unexpected idempotency status %q", fields["status"])
	}
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, resp CachedHTTPResponse, ttl time.Duration) error {
	redisKey := s.redisKey(scope, key)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisKey,
		"fingerprint", fingerprint,
		"status", "completed",
		"response_status", strconv.Itoa(resp.StatusCode),
		"content_type", resp.ContentType,
		"response_body", base64.StdEncoding.EncodeToString(resp.Body),
	)
	pipe.PExpire(ctx, redisKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete idempotent request: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) redisKey(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, normalizeToken(scope), hashToken(key))
}
