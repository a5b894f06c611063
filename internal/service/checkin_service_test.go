package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
	"gorm.io/gorm"
)

type checkInFixture struct {
	svc        *CheckInService
	store      *RedisCheckInTokenStore
	sessions   repository.SessionRepository
	attendance repository.AttendanceRepository
	points     repository.PointRepository
	db         *gorm.DB
	now        time.Time
	session    *domain.Session
}

// newCheckInFixture wires the real Redis store (miniredis) and real
// repositories around a session that is open at the fixture clock.
func newCheckInFixture(t *testing.T) *checkInFixture {
	t.Helper()
	_, client := newRedisClientForTest(t)
	db := newTestDB(t)

	now := time.Date(2025, 3, 7, 10, 5, 0, 0, time.UTC)
	sessions := repository.NewSessionRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	points := repository.NewPointRepository(db)
	store := NewRedisCheckInTokenStore(client, "test")

	start := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	session := &domain.Session{
		Title:            "weekly meeting",
		StartsAt:         start,
		EndsAt:           start.Add(30 * time.Minute),
		LateThresholdAt:  start.Add(20 * time.Minute),
		OpenGraceSeconds: 300,
		WeekNumber:       3,
	}
	if err := sessions.Create(session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	svc := NewCheckInService(
		store,
		NewOpenSessionResolver(sessions),
		attendance,
		NewPointService(points),
		fixedClock(now),
	)
	return &checkInFixture{
		svc:        svc,
		store:      store,
		sessions:   sessions,
		attendance: attendance,
		points:     points,
		db:         db,
		now:        now,
		session:    session,
	}
}

func TestScanAndRecordHappyPath(t *testing.T) {
	f := newCheckInFixture(t)
	ctx := context.Background()

	issued, err := f.svc.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Token == "" || !issued.ExpiresAt.Equal(f.now.Add(CheckInTokenTTL)) {
		t.Fatalf("unexpected issued token: %+v", issued)
	}

	resp, err := f.svc.ScanAndRecord(ctx, 1, issued.Token)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if resp.MemberID != 42 || resp.SessionID != f.session.ID {
		t.Fatalf("unexpected response: %+v", resp)
	}
	// 10:05 is after the 10:00 start, within the late threshold.
	if resp.Status != domain.StatusLate {
		t.Fatalf("expected LATE at 10:05, got %s", resp.Status)
	}

	ok, err := f.attendance.Exists(f.session.ID, 42)
	if err != nil || !ok {
		t.Fatalf("attendance row missing: ok=%v err=%v", ok, err)
	}
	logs, err := f.points.ListByMember(42)
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one point log, n=%d err=%v", len(logs), err)
	}
	if logs[0].Points != domain.StatusLate.Points() || logs[0].WeekNumber != 3 {
		t.Fatalf("unexpected point log: %+v", logs[0])
	}
}

func TestScanAndRecordNoOpenSession(t *testing.T) {
	f := newCheckInFixture(t)
	ctx := context.Background()

	late := NewCheckInService(
		f.svc.tokens,
		NewOpenSessionResolver(f.sessions),
		f.attendance,
		nil,
		fixedClock(f.now.Add(24*time.Hour)),
	)
	issued, err := f.svc.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := late.ScanAndRecord(ctx, 1, issued.Token); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}
}

func TestScanAndRecordUnknownToken(t *testing.T) {
	f := newCheckInFixture(t)
	if _, err := f.svc.ScanAndRecord(context.Background(), 1, "no-such-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestScanAndRecordIssueSupersedesPriorToken(t *testing.T) {
	f := newCheckInFixture(t)
	ctx := context.Background()

	first, err := f.svc.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := f.svc.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}

	if _, err := f.svc.ScanAndRecord(ctx, 1, first.Token); !errors.Is(err, ErrScanRaced) {
		t.Fatalf("superseded token must not scan, got %v", err)
	}
	if _, err := f.svc.ScanAndRecord(ctx, 1, second.Token); err != nil {
		t.Fatalf("fresh token must scan: %v", err)
	}
}

func TestScanAndRecordAlreadyRecordedKeepsTokenAlive(t *testing.T) {
	f := newCheckInFixture(t)
	ctx := context.Background()

	if err := f.attendance.Create(&domain.AttendanceRecord{
		SessionID:  f.session.ID,
		MemberID:   42,
		Status:     domain.StatusPresent,
		RecordedAt: f.now,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	issued, err := f.svc.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.svc.ScanAndRecord(ctx, 1, issued.Token); !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}

	// The duplicate check runs before consumption, so the token survives.
	payload, err := f.store.Peek(ctx, issued.Token)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if payload == nil || payload.Used {
		t.Fatalf("token must remain consumable after a duplicate scan, got %+v", payload)
	}
}

func TestScanAndRecordConcurrentSameToken(t *testing.T) {
	f := newCheckInFixture(t)
	ctx := context.Background()

	issued, err := f.svc.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const scanners = 8
	var wg sync.WaitGroup
	results := make(chan error, scanners)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ScanAndRecord(ctx, 1, issued.Token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, raced int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrScanRaced), errors.Is(err, ErrAlreadyRecorded):
			raced++
		default:
			t.Fatalf("unexpected scan error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winning scan, got %d (raced=%d)", successes, raced)
	}
}

func TestScanAndRecordClassifiesPresentBeforeStart(t *testing.T) {
	f := newCheckInFixture(t)
	ctx := context.Background()

	early := NewCheckInService(
		f.svc.tokens,
		NewOpenSessionResolver(f.sessions),
		f.attendance,
		nil,
		fixedClock(f.session.StartsAt.Add(-time.Nanosecond)),
	)
	issued, err := early.IssueFor(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp, err := early.ScanAndRecord(ctx, 1, issued.Token)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if resp.Status != domain.StatusPresent {
		t.Fatalf("expected PRESENT just before start, got %s", resp.Status)
	}
}
