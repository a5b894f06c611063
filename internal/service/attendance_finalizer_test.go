package service

import (
	"context"
	"testing"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type finalizerFixture struct {
	finalizer  *AttendanceFinalizer
	sessions   repository.SessionRepository
	members    repository.MemberRepository
	attendance repository.AttendanceRepository
	excuses    repository.ExcuseRepository
	points     repository.PointRepository
	session    *domain.Session
	now        time.Time
}

func newFinalizerFixture(t *testing.T, memberIDs ...uint) *finalizerFixture {
	t.Helper()
	db := newTestDB(t)
	sessions := repository.NewSessionRepository(db)
	members := repository.NewMemberRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	excuses := repository.NewExcuseRepository(db)
	points := repository.NewPointRepository(db)

	start := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	session := &domain.Session{
		Title:           "weekly meeting",
		StartsAt:        start,
		EndsAt:          start.Add(30 * time.Minute),
		LateThresholdAt: start.Add(20 * time.Minute),
		WeekNumber:      3,
	}
	if err := sessions.Create(session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	for i, id := range memberIDs {
		m := &domain.Member{
			Name:         "member",
			Email:        string(rune('a'+i)) + "@club.dev",
			PasswordHash: "x",
			Approved:     true,
			Onboarded:    true,
		}
		if err := members.Create(m); err != nil {
			t.Fatalf("create member: %v", err)
		}
		if m.ID != id {
			t.Fatalf("fixture expects sequential member ids, got %d want %d", m.ID, id)
		}
	}

	now := start.Add(25 * time.Minute)
	finalizer := NewAttendanceFinalizer(sessions, members, attendance, excuses,
		NewPointService(points), fixedClock(now))
	return &finalizerFixture{
		finalizer:  finalizer,
		sessions:   sessions,
		members:    members,
		attendance: attendance,
		excuses:    excuses,
		points:     points,
		session:    session,
		now:        now,
	}
}

func TestFinalizeInsertsAbsentForNoShows(t *testing.T) {
	f := newFinalizerFixture(t, 1, 2)
	ctx := context.Background()

	if err := f.attendance.Create(&domain.AttendanceRecord{
		SessionID: f.session.ID, MemberID: 1, Status: domain.StatusPresent, RecordedAt: f.session.StartsAt,
	}); err != nil {
		t.Fatalf("seed scan: %v", err)
	}

	if err := f.finalizer.Finalize(ctx, f.session.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	recs, err := f.attendance.ListBySession(f.session.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	boundary := f.finalizer.AbsenceBoundaryFor(f.session)
	for _, rec := range recs {
		if rec.MemberID == 2 {
			if rec.Status != domain.StatusAbsent {
				t.Fatalf("no-show must be ABSENT, got %s", rec.Status)
			}
			if !rec.RecordedAt.Equal(boundary) {
				t.Fatalf("catch-up rows must share the boundary timestamp, got %v want %v",
					rec.RecordedAt, boundary)
			}
		}
		if rec.MemberID == 1 && rec.Status != domain.StatusPresent {
			t.Fatalf("live scan record must be preserved, got %s", rec.Status)
		}
	}

	session, err := f.sessions.FindByID(f.session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if !session.Finalized || session.FinalizedAt == nil {
		t.Fatal("session must be marked finalized")
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFinalizerFixture(t, 1, 2)
	ctx := context.Background()

	if err := f.finalizer.Finalize(ctx, f.session.ID); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	first, err := f.attendance.ListBySession(f.session.ID)
	if err != nil {
		t.Fatalf("list after first: %v", err)
	}

	if err := f.finalizer.Finalize(ctx, f.session.ID); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	second, err := f.attendance.ListBySession(f.session.ID)
	if err != nil {
		t.Fatalf("list after second: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("finalize must not duplicate rows: %d then %d", len(first), len(second))
	}

	logs, err := f.points.ListByMember(1)
	if err != nil || len(logs) != 1 {
		t.Fatalf("point log must be written once, n=%d err=%v", len(logs), err)
	}
}

func TestFinalizeMapsApprovedExcuses(t *testing.T) {
	f := newFinalizerFixture(t, 1, 2, 3)
	ctx := context.Background()

	approvedAt := f.session.StartsAt
	if err := f.excuses.Create(&domain.ExcuseReport{
		SessionID: f.session.ID, MemberID: 1, Kind: domain.ExcuseLate, Reason: "bus strike", Approved: true, ApprovedAt: &approvedAt,
	}); err != nil {
		t.Fatalf("seed excuse 1: %v", err)
	}
	if err := f.excuses.Create(&domain.ExcuseReport{
		SessionID: f.session.ID, MemberID: 2, Kind: domain.ExcuseWithDocument, Reason: "hospital", Approved: false,
	}); err != nil {
		t.Fatalf("seed excuse 2: %v", err)
	}

	if err := f.finalizer.Finalize(ctx, f.session.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	recs, err := f.attendance.ListBySession(f.session.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byMember := map[uint]domain.AttendanceStatus{}
	for _, rec := range recs {
		byMember[rec.MemberID] = rec.Status
	}
	if byMember[1] != domain.StatusLate {
		t.Fatalf("approved late excuse must map to LATE, got %s", byMember[1])
	}
	if byMember[2] != domain.StatusAbsent {
		t.Fatalf("unapproved excuse must stay ABSENT, got %s", byMember[2])
	}
	if byMember[3] != domain.StatusAbsent {
		t.Fatalf("no excuse must be ABSENT, got %s", byMember[3])
	}
}

func TestFinalizeEmptyTargetStillFinalizes(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	if err := f.finalizer.Finalize(ctx, f.session.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	session, err := f.sessions.FindByID(f.session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !session.Finalized {
		t.Fatal("empty roster must still finalize the session")
	}
	recs, err := f.attendance.ListBySession(f.session.ID)
	if err != nil || len(recs) != 0 {
		t.Fatalf("no records expected, n=%d err=%v", len(recs), err)
	}
}
