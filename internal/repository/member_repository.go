package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/observability"

	"gorm.io/gorm"
)

var ErrMemberNotFound = errors.New("member not found")

type MemberRepository interface {
	Create(m *domain.Member) error
	FindByID(id uint) (*domain.Member, error)
	FindByEmail(email string) (*domain.Member, error)
	Update(m *domain.Member) error
	List(req PageRequest) (PageResult[domain.Member], error)
	// ListExpectedAttendeeIDs returns the ids the finalizer holds accountable:
	// approved and onboarded members.
	ListExpectedAttendeeIDs() ([]uint, error)
	Approve(id uint) error
	SetOnboarded(id uint) error
}

type GormMemberRepository struct{ db *gorm.DB }

func NewMemberRepository(db *gorm.DB) MemberRepository { return &GormMemberRepository{db: db} }

func (r *GormMemberRepository) Create(m *domain.Member) error {
	err := r.db.Create(m).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "create", "success")
	return nil
}

func (r *GormMemberRepository) FindByID(id uint) (*domain.Member, error) {
	var m domain.Member
	err := r.db.First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "member", "find_by_id", "not_found")
			return nil, ErrMemberNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "member", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "find_by_id", "success")
	return &m, nil
}

func (r *GormMemberRepository) FindByEmail(email string) (*domain.Member, error) {
	var m domain.Member
	err := r.db.Where("email = ?", email).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "member", "find_by_email", "not_found")
			return nil, ErrMemberNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "member", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "find_by_email", "success")
	return &m, nil
}

func (r *GormMemberRepository) Update(m *domain.Member) error {
	err := r.db.Save(m).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "update", "success")
	return nil
}

func (r *GormMemberRepository) List(req PageRequest) (PageResult[domain.Member], error) {
	req = normalizePageRequest(req)
	var total int64
	if err := r.db.Model(&domain.Member{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "list", "error")
		return PageResult[domain.Member]{}, err
	}
	var members []domain.Member
	err := r.db.Order("generation DESC, name ASC").Limit(req.PageSize).Offset(req.offset()).Find(&members).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "list", "error")
		return PageResult[domain.Member]{}, err
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "list", "success")
	return PageResult[domain.Member]{
		Items:      members,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}

func (r *GormMemberRepository) ListExpectedAttendeeIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&domain.Member{}).
		Where("approved = ? AND onboarded = ?", true, true).
		Pluck("id", &ids).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "list_expected_attendee_ids", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "list_expected_attendee_ids", "success")
	return ids, nil
}

func (r *GormMemberRepository) Approve(id uint) error {
	res := r.db.Model(&domain.Member{}).
		Where("id = ? AND approved = ?", id, false).
		Updates(map[string]any{"approved": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "approve", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&domain.Member{}).Where("id = ?", id).Count(&count).Error; err == nil && count == 0 {
			observability.RecordRepositoryOperation(context.Background(), "member", "approve", "not_found")
			return ErrMemberNotFound
		}
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "approve", "success")
	return nil
}

func (r *GormMemberRepository) SetOnboarded(id uint) error {
	res := r.db.Model(&domain.Member{}).
		Where("id = ?", id).
		Updates(map[string]any{"onboarded": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "member", "set_onboarded", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "member", "set_onboarded", "not_found")
		return ErrMemberNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "member", "set_onboarded", "success")
	return nil
}
