package repository

import (
	"context"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"

	"gorm.io/gorm"
)

type PointSummary struct {
	MemberID uint `json:"member_id"`
	Total    int  `json:"total"`
}

type PointRepository interface {
	Create(p *domain.PointLog) error
	ListByMember(memberID uint) ([]domain.PointLog, error)
	SummaryByMember(memberID uint) (PointSummary, error)
}

type GormPointRepository struct{ db *gorm.DB }

func NewPointRepository(db *gorm.DB) PointRepository { return &GormPointRepository{db: db} }

func (r *GormPointRepository) Create(p *domain.PointLog) error {
	err := r.db.Create(p).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "point", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "point", "create", "success")
	return nil
}

func (r *GormPointRepository) ListByMember(memberID uint) ([]domain.PointLog, error) {
	var logs []domain.PointLog
	err := r.db.Where("member_id = ?", memberID).Order("occurred_at DESC").Find(&logs).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "point", "list_by_member", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "point", "list_by_member", "success")
	return logs, nil
}

func (r *GormPointRepository) SummaryByMember(memberID uint) (PointSummary, error) {
	summary := PointSummary{MemberID: memberID}
	err := r.db.Model(&domain.PointLog{}).
		Where("member_id = ?", memberID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&summary.Total).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "point", "summary_by_member", "error")
		return summary, err
	}
	observability.RecordRepositoryOperation(context.Background(), "point", "summary_by_member", "success")
	return summary, nil
}
