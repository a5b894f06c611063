package service

import (
	"errors"
	"testing"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

func newResolverForTest(t *testing.T) (*OpenSessionResolver, repository.SessionRepository) {
	t.Helper()
	repo := repository.NewSessionRepository(newTestDB(t))
	return NewOpenSessionResolver(repo), repo
}

func makeSession(start time.Time, openGrace, closeGrace int) *domain.Session {
	return &domain.Session{
		Title:             "weekly meeting",
		StartsAt:          start,
		EndsAt:            start.Add(30 * time.Minute),
		LateThresholdAt:   start.Add(20 * time.Minute),
		OpenGraceSeconds:  openGrace,
		CloseGraceSeconds: closeGrace,
	}
}

func TestFindOpenNoSessions(t *testing.T) {
	resolver, _ := newResolverForTest(t)
	_, err := resolver.FindOpen(time.Now().UTC())
	if !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("expected ErrNoOpenSession, got %v", err)
	}
}

func TestFindOpenWindowBoundaries(t *testing.T) {
	resolver, repo := newResolverForTest(t)
	start := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	s := makeSession(start, 300, 60)
	if err := repo.Create(s); err != nil {
		t.Fatalf("create: %v", err)
	}

	windowFrom := start.Add(-5 * time.Minute)
	windowTo := s.EndsAt.Add(time.Minute)

	if _, err := resolver.FindOpen(windowFrom); err != nil {
		t.Fatalf("window start must be open: %v", err)
	}
	if _, err := resolver.FindOpen(windowTo); err != nil {
		t.Fatalf("window end must be open: %v", err)
	}
	if _, err := resolver.FindOpen(windowFrom.Add(-time.Second)); !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("before window must be closed, got %v", err)
	}
	if _, err := resolver.FindOpen(windowTo.Add(time.Second)); !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("after window must be closed, got %v", err)
	}
}

func TestFindOpenOverlapPrefersLatestStart(t *testing.T) {
	resolver, repo := newResolverForTest(t)
	start := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

	earlier := makeSession(start.Add(-15*time.Minute), 0, 3600)
	later := makeSession(start, 0, 3600)
	if err := repo.Create(earlier); err != nil {
		t.Fatalf("create earlier: %v", err)
	}
	if err := repo.Create(later); err != nil {
		t.Fatalf("create later: %v", err)
	}

	open, err := resolver.FindOpen(start.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open.ID != later.ID {
		t.Fatalf("most recently started session must win, got session %d", open.ID)
	}
}
