package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrExcuseNotFound  = errors.New("excuse report not found")
	ErrDuplicateExcuse = errors.New("excuse report already submitted")
)

type ExcuseRepository interface {
	Create(e *domain.ExcuseReport) error
	FindByID(id uint) (*domain.ExcuseReport, error)
	// FindForSessionMembers returns at most one report per member for the
	// session, keyed by member id. The finalizer consumes this map.
	FindForSessionMembers(sessionID uint, memberIDs []uint) (map[uint]*domain.ExcuseReport, error)
	ListBySession(sessionID uint) ([]domain.ExcuseReport, error)
	Approve(id uint, at time.Time) error
}

type GormExcuseRepository struct{ db *gorm.DB }

func NewExcuseRepository(db *gorm.DB) ExcuseRepository { return &GormExcuseRepository{db: db} }

func (r *GormExcuseRepository) Create(e *domain.ExcuseReport) error {
	err := r.db.Create(e).Error
	if err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(context.Background(), "excuse", "create", "duplicate")
			return ErrDuplicateExcuse
		}
		observability.RecordRepositoryOperation(context.Background(), "excuse", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "excuse", "create", "success")
	return nil
}

func (r *GormExcuseRepository) FindByID(id uint) (*domain.ExcuseReport, error) {
	var e domain.ExcuseReport
	err := r.db.First(&e, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "excuse", "find_by_id", "not_found")
			return nil, ErrExcuseNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "excuse", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "excuse", "find_by_id", "success")
	return &e, nil
}

func (r *GormExcuseRepository) FindForSessionMembers(sessionID uint, memberIDs []uint) (map[uint]*domain.ExcuseReport, error) {
	result := make(map[uint]*domain.ExcuseReport, len(memberIDs))
	if len(memberIDs) == 0 {
		return result, nil
	}
	var reports []domain.ExcuseReport
	err := r.db.Where("session_id = ? AND member_id IN ?", sessionID, memberIDs).Find(&reports).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "excuse", "find_for_session_members", "error")
		return nil, err
	}
	for i := range reports {
		result[reports[i].MemberID] = &reports[i]
	}
	observability.RecordRepositoryOperation(context.Background(), "excuse", "find_for_session_members", "success")
	return result, nil
}

func (r *GormExcuseRepository) ListBySession(sessionID uint) ([]domain.ExcuseReport, error) {
	var reports []domain.ExcuseReport
	err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&reports).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "excuse", "list_by_session", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "excuse", "list_by_session", "success")
	return reports, nil
}

func (r *GormExcuseRepository) Approve(id uint, at time.Time) error {
	res := r.db.Model(&domain.ExcuseReport{}).
		Where("id = ? AND approved = ?", id, false).
		Updates(map[string]any{"approved": true, "approved_at": at})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "excuse", "approve", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&domain.ExcuseReport{}).Where("id = ?", id).Count(&count).Error; err == nil && count == 0 {
			observability.RecordRepositoryOperation(context.Background(), "excuse", "approve", "not_found")
			return ErrExcuseNotFound
		}
	}
	observability.RecordRepositoryOperation(context.Background(), "excuse", "approve", "success")
	return nil
}
