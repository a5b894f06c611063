package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
)

func TestAttendanceRepositoryDuplicateInsertIsClassified(t *testing.T) {
	repo := NewAttendanceRepository(newTestDB(t))
	at := time.Date(2025, 3, 7, 10, 5, 0, 0, time.UTC)

	first := &domain.AttendanceRecord{SessionID: 1, MemberID: 7, Status: domain.StatusPresent, RecordedAt: at}
	if err := repo.Create(first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := &domain.AttendanceRecord{SessionID: 1, MemberID: 7, Status: domain.StatusLate, RecordedAt: at}
	if err := repo.Create(dup); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}

	other := &domain.AttendanceRecord{SessionID: 2, MemberID: 7, Status: domain.StatusPresent, RecordedAt: at}
	if err := repo.Create(other); err != nil {
		t.Fatalf("same member, other session must insert: %v", err)
	}
}

func TestAttendanceRepositoryExistsAndListing(t *testing.T) {
	repo := NewAttendanceRepository(newTestDB(t))
	at := time.Date(2025, 3, 7, 10, 5, 0, 0, time.UTC)

	records := []*domain.AttendanceRecord{
		{SessionID: 1, MemberID: 1, Status: domain.StatusPresent, RecordedAt: at},
		{SessionID: 1, MemberID: 2, Status: domain.StatusLate, RecordedAt: at.Add(time.Minute)},
		{SessionID: 2, MemberID: 1, Status: domain.StatusAbsent, RecordedAt: at.Add(time.Hour)},
	}
	for _, rec := range records {
		if err := repo.Create(rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	ok, err := repo.Exists(1, 2)
	if err != nil || !ok {
		t.Fatalf("expected record to exist, ok=%v err=%v", ok, err)
	}
	ok, err = repo.Exists(2, 2)
	if err != nil || ok {
		t.Fatalf("expected no record, ok=%v err=%v", ok, err)
	}

	ids, err := repo.ListMemberIDsBySession(1)
	if err != nil {
		t.Fatalf("list member ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 member ids for session 1, got %v", ids)
	}

	bySession, err := repo.ListBySession(1)
	if err != nil || len(bySession) != 2 {
		t.Fatalf("list by session: n=%d err=%v", len(bySession), err)
	}
	byMember, err := repo.ListByMember(1)
	if err != nil || len(byMember) != 2 {
		t.Fatalf("list by member: n=%d err=%v", len(byMember), err)
	}
}
