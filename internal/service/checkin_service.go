package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/repository"
	"github.com/sehyun-p/clubsync/internal/security"
)

var (
	ErrSessionNotOpen  = errors.New("no session currently accepts check-ins")
	ErrTokenInvalid    = errors.New("check-in token invalid")
	ErrAlreadyRecorded = errors.New("attendance already recorded")
	ErrScanRaced       = errors.New("check-in token consumed by a concurrent scan")
)

const (
	// CheckInTokenTTL bounds how long an issued token stays scannable.
	CheckInTokenTTL = 15 * time.Second
	// UsedTokenGrace keeps a consumed or superseded token record around so a
	// late duplicate scan is rejected as already-used, not unknown.
	UsedTokenGrace = 10 * time.Second
)

type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AttendanceResponse struct {
	MemberID  uint                    `json:"member_id"`
	SessionID uint                    `json:"session_id"`
	Status    domain.AttendanceStatus `json:"status"`
	ScannedAt time.Time               `json:"scanned_at"`
}

type CheckInService struct {
	tokens     CheckInTokenStore
	resolver   *OpenSessionResolver
	attendance repository.AttendanceRepository
	points     *PointService
	clock      Clock
	tokenTTL   time.Duration
	usedGrace  time.Duration
}

func NewCheckInService(
	tokens CheckInTokenStore,
	resolver *OpenSessionResolver,
	attendance repository.AttendanceRepository,
	points *PointService,
	clock Clock,
) *CheckInService {
	if clock == nil {
		clock = SystemClock()
	}
	return &CheckInService{
		tokens:     tokens,
		resolver:   resolver,
		attendance: attendance,
		points:     points,
		clock:      clock,
		tokenTTL:   CheckInTokenTTL,
		usedGrace:  UsedTokenGrace,
	}
}

// IssueFor mints a fresh single-use token for the member. Issuing atomically
// supersedes any still-active prior token; the previous token is never
// returned and can no longer be consumed.
func (s *CheckInService) IssueFor(ctx context.Context, memberID uint) (*IssuedToken, error) {
	token, err := security.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.tokenTTL)
	payload := CheckInTokenPayload{
		MemberID:  memberID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.IssueActive(ctx, memberID, token, payload, s.tokenTTL, s.usedGrace); err != nil {
		observability.RecordCheckInIssue(ctx, "error")
		return nil, err
	}
	observability.RecordCheckInIssue(ctx, "success")
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// ScanAndRecord validates a presented token against the open session and
// records attendance once. The duplicate check deliberately runs before
// consumption so a retried scan does not burn the member's only active token.
func (s *CheckInService) ScanAndRecord(ctx context.Context, operatorID uint, token string) (*AttendanceResponse, error) {
	now := s.clock.Now()

	session, err := s.resolver.FindOpen(now)
	if err != nil {
		if errors.Is(err, ErrNoOpenSession) {
			observability.RecordCheckInScan(ctx, "session_not_open")
			return nil, ErrSessionNotOpen
		}
		return nil, err
	}

	payload, err := s.tokens.Peek(ctx, token)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		observability.RecordCheckInScan(ctx, "token_invalid")
		return nil, ErrTokenInvalid
	}

	recorded, err := s.attendance.Exists(session.ID, payload.MemberID)
	if err != nil {
		return nil, err
	}
	if recorded {
		observability.RecordCheckInScan(ctx, "already_recorded")
		return nil, ErrAlreadyRecorded
	}

	consumed, err := s.tokens.Consume(ctx, token, s.usedGrace)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			// The token was used or expired between peek and consume.
			observability.RecordCheckInScan(ctx, "raced")
			return nil, ErrScanRaced
		}
		return nil, err
	}

	status := domain.ClassifyAttendance(session, now)
	rec := &domain.AttendanceRecord{
		SessionID:  session.ID,
		MemberID:   consumed.MemberID,
		Status:     status,
		RecordedAt: now,
	}
	if err := s.attendance.Create(rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			observability.RecordCheckInScan(ctx, "already_recorded")
			return nil, ErrAlreadyRecorded
		}
		return nil, err
	}

	if s.points != nil {
		if err := s.points.Record(consumed.MemberID, session.ID, status, now, session.WeekNumber); err != nil {
			slog.WarnContext(ctx, "point ledger entry failed",
				"member_id", consumed.MemberID,
				"session_id", session.ID,
				"error", err.Error(),
			)
		}
	}

	observability.RecordCheckInScan(ctx, "success")
	slog.InfoContext(ctx, "attendance recorded",
		"member_id", consumed.MemberID,
		"session_id", session.ID,
		"operator_id", operatorID,
		"status", string(status),
	)
	return &AttendanceResponse{
		MemberID:  consumed.MemberID,
		SessionID: session.ID,
		Status:    status,
		ScannedAt: now,
	}, nil
}
