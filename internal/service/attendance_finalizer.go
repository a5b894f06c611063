package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/repository"
)

const (
	// DefaultLateWindow is how long after session start a live scan still
	// counts as late rather than absent.
	DefaultLateWindow = 20 * time.Minute
	// DefaultSafetyOffset is deliberate slack between the live late threshold
	// and the finalize boundary; the two constants are intentionally not
	// equal.
	DefaultSafetyOffset = time.Minute
)

// AttendanceFinalizer converts a session's missing attendance rows into
// permanent status records and closes the session. Finalize is idempotent:
// the finalized flag is the guard and duplicate-row races are swallowed
// per member, so re-running after a crash is always safe.
type AttendanceFinalizer struct {
	sessions     repository.SessionRepository
	members      repository.MemberRepository
	attendance   repository.AttendanceRepository
	excuses      repository.ExcuseRepository
	points       *PointService
	clock        Clock
	lateWindow   time.Duration
	safetyOffset time.Duration
}

func NewAttendanceFinalizer(
	sessions repository.SessionRepository,
	members repository.MemberRepository,
	attendance repository.AttendanceRepository,
	excuses repository.ExcuseRepository,
	points *PointService,
	clock Clock,
) *AttendanceFinalizer {
	if clock == nil {
		clock = SystemClock()
	}
	return &AttendanceFinalizer{
		sessions:     sessions,
		members:      members,
		attendance:   attendance,
		excuses:      excuses,
		points:       points,
		clock:        clock,
		lateWindow:   DefaultLateWindow,
		safetyOffset: DefaultSafetyOffset,
	}
}

// WithTimings overrides the late window and finalize safety offset for
// deployments that tune them through configuration.
func (f *AttendanceFinalizer) WithTimings(lateWindow, safetyOffset time.Duration) *AttendanceFinalizer {
	if lateWindow > 0 {
		f.lateWindow = lateWindow
	}
	if safetyOffset >= 0 {
		f.safetyOffset = safetyOffset
	}
	return f
}

// AbsenceBoundaryFor computes the instant at which the session's roll must be
// finalized.
func (f *AttendanceFinalizer) AbsenceBoundaryFor(s *domain.Session) time.Time {
	return s.AbsenceBoundary(f.lateWindow, f.safetyOffset)
}

func (f *AttendanceFinalizer) Finalize(ctx context.Context, sessionID uint) error {
	session, err := f.sessions.FindByID(sessionID)
	if err != nil {
		return err
	}
	if session.Finalized {
		observability.RecordFinalize(ctx, "noop")
		return nil
	}

	target, err := f.members.ListExpectedAttendeeIDs()
	if err != nil {
		return err
	}
	if len(target) == 0 {
		observability.RecordFinalize(ctx, "empty")
		return f.markFinalized(ctx, session)
	}

	recorded, err := f.attendance.ListMemberIDsBySession(session.ID)
	if err != nil {
		return err
	}
	missing := subtractIDs(target, recorded)
	if len(missing) == 0 {
		observability.RecordFinalize(ctx, "complete")
		return f.markFinalized(ctx, session)
	}

	excuses, err := f.excuses.FindForSessionMembers(session.ID, missing)
	if err != nil {
		return err
	}

	// All catch-up rows share the boundary timestamp, not "now", so a
	// delayed finalize produces the same records a punctual one would.
	boundary := f.AbsenceBoundaryFor(session)
	for _, memberID := range missing {
		status := excuses[memberID].FinalStatus()
		rec := &domain.AttendanceRecord{
			SessionID:  session.ID,
			MemberID:   memberID,
			Status:     status,
			RecordedAt: boundary,
		}
		if err := f.attendance.Create(rec); err != nil {
			if errors.Is(err, repository.ErrDuplicateRecord) {
				// A live scan landed between the missing-set computation and
				// this insert; the scan's record wins.
				slog.DebugContext(ctx, "finalize lost insert race to live scan",
					"session_id", session.ID, "member_id", memberID)
				continue
			}
			// A single member must not abort the whole pass.
			slog.ErrorContext(ctx, "finalize catch-up insert failed",
				"session_id", session.ID, "member_id", memberID, "error", err.Error())
			continue
		}
		if f.points != nil {
			if err := f.points.Record(memberID, session.ID, status, boundary, session.WeekNumber); err != nil {
				slog.WarnContext(ctx, "point ledger entry failed",
					"member_id", memberID, "session_id", session.ID, "error", err.Error())
			}
		}
	}

	observability.RecordFinalize(ctx, "success")
	return f.markFinalized(ctx, session)
}

func (f *AttendanceFinalizer) markFinalized(ctx context.Context, session *domain.Session) error {
	err := f.sessions.MarkFinalized(session.ID, f.clock.Now())
	if errors.Is(err, repository.ErrAlreadyFinalized) {
		// A concurrent finalize won the flag flip; the outcome is identical.
		return nil
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "session finalized", "session_id", session.ID)
	return nil
}

func subtractIDs(target, recorded []uint) []uint {
	seen := make(map[uint]struct{}, len(recorded))
	for _, id := range recorded {
		seen[id] = struct{}{}
	}
	missing := make([]uint, 0, len(target))
	for _, id := range target {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
