package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AdminListCacheStore caches serialized list responses for the operator
// endpoints (member roster, notices) so repeated dashboard refreshes do not
// hammer the database. Entries carry a written-at meta key so callers can
// surface cache age.
type AdminListCacheStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	GetWithAge(ctx context.Context, namespace, key string) ([]byte, bool, time.Duration, error)
	Set(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

type RedisAdminListCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAdminListCacheStore(client redis.UniversalClient, prefix string) *RedisAdminListCacheStore {
	if prefix == "" {
		prefix = "admin_list_cache"
	}
	return &RedisAdminListCacheStore{client: client, prefix: prefix}
}

func (s *RedisAdminListCacheStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	payload, ok, _, err := s.GetWithAge(ctx, namespace, key)
	return payload, ok, err
}

func (s *RedisAdminListCacheStore) GetWithAge(ctx context.Context, namespace, key string) ([]byte, bool, time.Duration, error) {
	if s.client == nil {
		return nil, false, 0, nil
	}
	payload, err := s.client.Get(ctx, s.dataKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false, 0, nil
	}
	if err != nil {
		return nil, false, 0, err
	}
	// Meta is best effort: a missing or malformed written-at marker still
	// counts as a hit with unknown age.
	raw, err := s.client.Get(ctx, s.metaKey(namespace, key)).Result()
	if err != nil {
		return payload, true, 0, nil
	}
	writtenMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || writtenMs <= 0 {
		return payload, true, 0, nil
	}
	age := time.Since(time.UnixMilli(writtenMs))
	if age < 0 {
		age = 0
	}
	return payload, true, age, nil
}

func (s *RedisAdminListCacheStore) Set(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	dataKey := s.dataKey(namespace, key)
	metaKey := s.metaKey(namespace, key)
	namespaceIndex := s.namespaceIndexKey(namespace)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, payload, ttl)
	pipe.Set(ctx, metaKey, strconv.FormatInt(time.Now().UnixMilli(), 10), ttl)
	pipe.SAdd(ctx, namespaceIndex, dataKey, metaKey)
	pipe.Expire(ctx, namespaceIndex, ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisAdminListCacheStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	if s.client == nil {
		return nil
	}
	namespaceIndex := s.namespaceIndexKey(namespace)
	keys, err := s.client.SMembers(ctx, namespaceIndex).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, namespaceIndex)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisAdminListCacheStore) dataKey(namespace, key string) string {
	return fmt.Sprintf("%s:data:%s:%s", s.prefix, normalizeToken(namespace), hashToken(key))
}

func (s *RedisAdminListCacheStore) metaKey(namespace, key string) string {
	return fmt.Sprintf("%s:meta:%s:%s", s.prefix, normalizeToken(namespace), hashToken(key))
}

func (s *RedisAdminListCacheStore) namespaceIndexKey(namespace string) string {
	return fmt.Sprintf("%s:index:%s", s.prefix, normalizeToken(namespace))
}
