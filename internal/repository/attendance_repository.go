package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"

	"gorm.io/gorm"
)

// ErrDuplicateRecord signals that the (session, member) uniqueness constraint
// fired. Both the live scan path and the finalize catch-up treat it as
// "already recorded", never as a hard failure.
var ErrDuplicateRecord = errors.New("attendance record already exists")

type AttendanceRepository interface {
	Create(rec *domain.AttendanceRecord) error
	Exists(sessionID, memberID uint) (bool, error)
	ListMemberIDsBySession(sessionID uint) ([]uint, error)
	ListBySession(sessionID uint) ([]domain.AttendanceRecord, error)
	ListByMember(memberID uint) ([]domain.AttendanceRecord, error)
}

type GormAttendanceRepository struct{ db *gorm.DB }

func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &GormAttendanceRepository{db: db}
}

func (r *GormAttendanceRepository) Create(rec *domain.AttendanceRecord) error {
	err := r.db.Create(rec).Error
	if err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(context.Background(), "attendance", "create", "duplicate")
			return ErrDuplicateRecord
		}
		observability.RecordRepositoryOperation(context.Background(), "attendance", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "attendance", "create", "success")
	return nil
}

func (r *GormAttendanceRepository) Exists(sessionID, memberID uint) (bool, error) {
	var count int64
	err := r.db.Model(&domain.AttendanceRecord{}).
		Where("session_id = ? AND member_id = ?", sessionID, memberID).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "attendance", "exists", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "attendance", "exists", "success")
	return count > 0, nil
}

func (r *GormAttendanceRepository) ListMemberIDsBySession(sessionID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&domain.AttendanceRecord{}).
		Where("session_id = ?", sessionID).
		Pluck("member_id", &ids).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "attendance", "list_member_ids_by_session", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "attendance", "list_member_ids_by_session", "success")
	return ids, nil
}

func (r *GormAttendanceRepository) ListBySession(sessionID uint) ([]domain.AttendanceRecord, error) {
	var recs []domain.AttendanceRecord
	err := r.db.Where("session_id = ?", sessionID).Order("recorded_at ASC").Find(&recs).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "attendance", "list_by_session", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "attendance", "list_by_session", "success")
	return recs, nil
}

func (r *GormAttendanceRepository) ListByMember(memberID uint) ([]domain.AttendanceRecord, error) {
	var recs []domain.AttendanceRecord
	err := r.db.Where("member_id = ?", memberID).Order("recorded_at DESC").Find(&recs).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "attendance", "list_by_member", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "attendance", "list_by_member", "success")
	return recs, nil
}

// isDuplicateKey covers gorm's translated error plus the raw constraint text
// from drivers that are not configured for translation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
