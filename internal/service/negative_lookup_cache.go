package service

import (
	"context"
	"sync"
	"time"
)

// NegativeLookupCacheStore remembers that a lookup came back empty, so hot
// paths (login with an unknown email) can skip the database for a while.
// Entries are namespaced so a write in one area can be invalidated without
// touching the others.
type NegativeLookupCacheStore interface {
	Get(ctx context.Context, namespace, key string) (bool, error)
	Set(ctx context.Context, namespace, key string, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

// NoopNegativeLookupCacheStore never hits; it stands in when caching is
// disabled or not yet wired.
type NoopNegativeLookupCacheStore struct{}

func NewNoopNegativeLookupCacheStore() *NoopNegativeLookupCacheStore {
	return &NoopNegativeLookupCacheStore{}
}

func (s *NoopNegativeLookupCacheStore) Get(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *NoopNegativeLookupCacheStore) Set(context.Context, string, string, time.Duration) error {
	return nil
}

func (s *NoopNegativeLookupCacheStore) InvalidateNamespace(context.Context, string) error {
	return nil
}

type negativeEntry struct {
	expiresAt time.Time
}

// InMemoryNegativeLookupCacheStore is a process-local fallback used in tests
// and single-instance deployments. Expired entries are dropped on read.
type InMemoryNegativeLookupCacheStore struct {
	mu         sync.Mutex
	namespaces map[string]map[string]negativeEntry
}

func NewInMemoryNegativeLookupCacheStore() *InMemoryNegativeLookupCacheStore {
	return &InMemoryNegativeLookupCacheStore{
		namespaces: make(map[string]map[string]negativeEntry),
	}
}

func (s *InMemoryNegativeLookupCacheStore) Get(_ context.Context, namespace, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return false, nil
	}
	entry, ok := ns[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(ns, key)
		if len(ns) == 0 {
			delete(s.namespaces, namespace)
		}
		return false, nil
	}
	return true, nil
}

func (s *InMemoryNegativeLookupCacheStore) Set(_ context.Context, namespace, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]negativeEntry)
		s.namespaces[namespace] = ns
	}
	ns[key] = negativeEntry{expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *InMemoryNegativeLookupCacheStore) InvalidateNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}
