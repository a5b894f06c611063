package service

import (
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type SessionInput struct {
	Title             string    `json:"title"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	LateThresholdAt   time.Time `json:"late_threshold_at"`
	OpenGraceSeconds  int       `json:"open_grace_seconds"`
	CloseGraceSeconds int       `json:"close_grace_seconds"`
	Bonus             bool      `json:"bonus"`
	WeekNumber        int       `json:"week_number"`
}

func (in *SessionInput) validate() error {
	fields := map[string]string{}
	if in.Title == "" {
		fields["title"] = "required"
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() {
		fields["starts_at"] = "start and end are required"
	} else if !in.EndsAt.After(in.StartsAt) {
		fields["ends_at"] = "must be after starts_at"
	}
	if in.OpenGraceSeconds < 0 || in.CloseGraceSeconds < 0 {
		fields["grace"] = "grace seconds must not be negative"
	}
	if len(fields) > 0 {
		return &FieldViolations{Fields: fields}
	}
	return nil
}

// SessionService owns session CRUD and drives finalize (re)scheduling from
// committed timing changes.
type SessionService struct {
	sessions  repository.SessionRepository
	scheduler *FinalizeScheduler
}

func NewSessionService(sessions repository.SessionRepository, scheduler *FinalizeScheduler) *SessionService {
	return &SessionService{sessions: sessions, scheduler: scheduler}
}

func (s *SessionService) Create(in SessionInput) (*domain.Session, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	lateThreshold := in.LateThresholdAt
	if lateThreshold.IsZero() {
		lateThreshold = in.StartsAt.Add(DefaultLateWindow)
	}
	session := &domain.Session{
		Title:             in.Title,
		StartsAt:          in.StartsAt,
		EndsAt:            in.EndsAt,
		LateThresholdAt:   lateThreshold,
		OpenGraceSeconds:  in.OpenGraceSeconds,
		CloseGraceSeconds: in.CloseGraceSeconds,
		Bonus:             in.Bonus,
		WeekNumber:        in.WeekNumber,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}
	// Create runs in its own transaction, so the timing is durable here.
	if s.scheduler != nil {
		s.scheduler.ScheduleSession(session)
	}
	return session, nil
}

// UpdateTiming commits the new timing and re-arms the finalize timer via the
// repository's post-commit hook, so the scheduler never sees timing a
// rollback could undo.
func (s *SessionService) UpdateTiming(id uint, in SessionInput) (*domain.Session, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	lateThreshold := in.LateThresholdAt
	if lateThreshold.IsZero() {
		lateThreshold = in.StartsAt.Add(DefaultLateWindow)
	}
	timing := repository.SessionTiming{
		StartsAt:          in.StartsAt,
		EndsAt:            in.EndsAt,
		LateThresholdAt:   lateThreshold,
		OpenGraceSeconds:  in.OpenGraceSeconds,
		CloseGraceSeconds: in.CloseGraceSeconds,
	}
	var afterCommit func(*domain.Session)
	if s.scheduler != nil {
		afterCommit = s.scheduler.ScheduleSession
	}
	return s.sessions.UpdateTiming(id, timing, afterCommit)
}

func (s *SessionService) Get(id uint) (*domain.Session, error) {
	return s.sessions.FindByID(id)
}

func (s *SessionService) List(req repository.PageRequest) (repository.PageResult[domain.Session], error) {
	return s.sessions.List(req)
}
