package service

import (
	"errors"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

var ErrNoOpenSession = errors.New("no session currently accepts check-ins")

// OpenSessionResolver finds the single session whose grace-extended window
// contains a given instant.
type OpenSessionResolver struct {
	sessions repository.SessionRepository
}

func NewOpenSessionResolver(sessions repository.SessionRepository) *OpenSessionResolver {
	return &OpenSessionResolver{sessions: sessions}
}

// FindOpen returns the open session at now, or ErrNoOpenSession. Overlapping
// windows should not occur, but when they do the most recently started
// session wins.
func (r *OpenSessionResolver) FindOpen(now time.Time) (*domain.Session, error) {
	candidates, err := r.sessions.FindOpenCandidates(now)
	if err != nil {
		return nil, err
	}
	var open *domain.Session
	for i := range candidates {
		s := &candidates[i]
		if !s.AcceptsCheckInAt(now) {
			continue
		}
		if open == nil || s.StartsAt.After(open.StartsAt) {
			open = s
		}
	}
	if open == nil {
		return nil, ErrNoOpenSession
	}
	return open, nil
}
