package repository

import (
	"context"
	"errors"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"

	"gorm.io/gorm"
)

var ErrNoticeNotFound = errors.New("notice not found")

type NoticeRepository interface {
	Create(n *domain.Notice) error
	FindByID(id uint) (*domain.Notice, error)
	List(req PageRequest) (PageResult[domain.Notice], error)
	Update(n *domain.Notice) error
	Delete(id uint) error
}

type GormNoticeRepository struct{ db *gorm.DB }

func NewNoticeRepository(db *gorm.DB) NoticeRepository { return &GormNoticeRepository{db: db} }

func (r *GormNoticeRepository) Create(n *domain.Notice) error {
	err := r.db.Create(n).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "notice", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "notice", "create", "success")
	return nil
}

func (r *GormNoticeRepository) FindByID(id uint) (*domain.Notice, error) {
	var n domain.Notice
	err := r.db.First(&n, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "notice", "find_by_id", "not_found")
			return nil, ErrNoticeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "notice", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "notice", "find_by_id", "success")
	return &n, nil
}

func (r *GormNoticeRepository) List(req PageRequest) (PageResult[domain.Notice], error) {
	req = normalizePageRequest(req)
	var total int64
	if err := r.db.Model(&domain.Notice{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "notice", "list", "error")
		return PageResult[domain.Notice]{}, err
	}
	var notices []domain.Notice
	err := r.db.Order("pinned DESC, created_at DESC").Limit(req.PageSize).Offset(req.offset()).Find(&notices).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "notice", "list", "error")
		return PageResult[domain.Notice]{}, err
	}
	observability.RecordRepositoryOperation(context.Background(), "notice", "list", "success")
	return PageResult[domain.Notice]{
		Items:      notices,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}

func (r *GormNoticeRepository) Update(n *domain.Notice) error {
	err := r.db.Save(n).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "notice", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "notice", "update", "success")
	return nil
}

func (r *GormNoticeRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.Notice{}, id)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "notice", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "notice", "delete", "not_found")
		return ErrNoticeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "notice", "delete", "success")
	return nil
}
