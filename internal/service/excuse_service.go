package service

import (
	"strings"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type ExcuseInput struct {
	SessionID uint              `json:"session_id"`
	Kind      domain.ExcuseKind `json:"kind"`
	Reason    string            `json:"reason"`
}

func (in *ExcuseInput) validate() error {
	fields := map[string]string{}
	if in.SessionID == 0 {
		fields["session_id"] = "required"
	}
	switch in.Kind {
	case domain.ExcuseLate, domain.ExcusePersonal, domain.ExcuseWithDocument,
		domain.ExcuseUnavoidable, domain.ExcuseOfficialLeave:
	default:
		fields["kind"] = "unknown excuse kind"
	}
	if strings.TrimSpace(in.Reason) == "" {
		fields["reason"] = "required"
	}
	if len(fields) > 0 {
		return &FieldViolations{Fields: fields}
	}
	return nil
}

type ExcuseService struct {
	excuses  repository.ExcuseRepository
	sessions repository.SessionRepository
	clock    Clock
}

func NewExcuseService(excuses repository.ExcuseRepository, sessions repository.SessionRepository, clock Clock) *ExcuseService {
	if clock == nil {
		clock = SystemClock()
	}
	return &ExcuseService{excuses: excuses, sessions: sessions, clock: clock}
}

// Submit records an excuse report for a member who will miss a session. The
// report only softens the finalized status once an operator approves it.
func (s *ExcuseService) Submit(memberID uint, in ExcuseInput) (*domain.ExcuseReport, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Finalized {
		return nil, repository.ErrAlreadyFinalized
	}
	e := &domain.ExcuseReport{
		SessionID: session.ID,
		MemberID:  memberID,
		Kind:      in.Kind,
		Reason:    strings.TrimSpace(in.Reason),
	}
	if err := s.excuses.Create(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *ExcuseService) Approve(id uint) error {
	return s.excuses.Approve(id, s.clock.Now())
}

func (s *ExcuseService) ListBySession(sessionID uint) ([]domain.ExcuseReport, error) {
	return s.excuses.ListBySession(sessionID)
}
