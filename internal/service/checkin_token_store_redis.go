package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// issueActiveScript supersedes any prior active token and installs the new
// one as a single atomic unit. The old record is kept briefly as "used"
// instead of deleted so a late duplicate scan is rejected as already-used
// rather than unknown.
var issueActiveScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old and old ~= ARGV[5] then
  local oldKey = ARGV[4] .. old
  local raw = redis.call('GET', oldKey)
  if raw then
    local payload = cjson.decode(raw)
    payload['used'] = true
    local ttl = redis.call('PTTL', oldKey)
    local grace = tonumber(ARGV[3])
    if ttl <= 0 or ttl > grace then
      ttl = grace
    end
    redis.call('SET', oldKey, cjson.encode(payload), 'PX', ttl)
  end
end
redis.call('SET', KEYS[2], ARGV[1], 'PX', tonumber(ARGV[2]))
redis.call('SET', KEYS[1], ARGV[5], 'PX', tonumber(ARGV[2]))
return 1
`)

// consumeScript is a single read-modify-write: of N concurrent consumers of
// one token exactly one observes used=false. It returns the payload as read
// before the mutation.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
local payload = cjson.decode(raw)
if payload['used'] then
  return false
end
payload['used'] = true
local ttl = redis.call('PTTL', KEYS[1])
local grace = tonumber(ARGV[1])
if ttl <= 0 or ttl > grace then
  ttl = grace
end
redis.call('SET', KEYS[1], cjson.encode(payload), 'PX', ttl)
return raw
`)

type RedisCheckInTokenStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCheckInTokenStore(client redis.UniversalClient, prefix string) *RedisCheckInTokenStore {
	if prefix == "" {
		prefix = "checkin"
	}
	return &RedisCheckInTokenStore{client: client, prefix: prefix}
}

func (s *RedisCheckInTokenStore) IssueActive(ctx context.Context, memberID uint, token string, payload CheckInTokenPayload, ttl, usedGrace time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal token payload: %w", err)
	}
	keys := []string{s.activeKey(memberID), s.tokenKey(token)}
	args := []any{
		string(raw),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		strconv.FormatInt(usedGrace.Milliseconds(), 10),
		s.tokenKeyPrefix(),
		token,
	}
	if err := issueActiveScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("%w: issue active: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

func (s *RedisCheckInTokenStore) Consume(ctx context.Context, token string, usedGrace time.Duration) (*CheckInTokenPayload, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.tokenKey(token)},
		strconv.FormatInt(usedGrace.Milliseconds(), 10)).Text()
	if err == redis.Nil {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: consume: %v", ErrTokenStoreUnavailable, err)
	}
	var payload CheckInTokenPayload
	if err := json.Unmarshal([]byte(res), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal token payload: %w", err)
	}
	return &payload, nil
}

func (s *RedisCheckInTokenStore) Peek(ctx context.Context, token string) (*CheckInTokenPayload, error) {
	raw, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: peek: %v", ErrTokenStoreUnavailable, err)
	}
	var payload CheckInTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal token payload: %w", err)
	}
	return &payload, nil
}

func (s *RedisCheckInTokenStore) activeKey(memberID uint) string {
	return fmt.Sprintf("%s:active:%d", s.prefix, memberID)
}

func (s *RedisCheckInTokenStore) tokenKey(token string) string {
	return s.tokenKeyPrefix() + token
}

func (s *RedisCheckInTokenStore) tokenKeyPrefix() string {
	return s.prefix + ":token:"
}
