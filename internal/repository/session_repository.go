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
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyFinalized = errors.New("session already finalized")
)

type SessionTiming struct {
	StartsAt          time.Time
	EndsAt            time.Time
	LateThresholdAt   time.Time
	OpenGraceSeconds  int
	CloseGraceSeconds int
}

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByID(id uint) (*domain.Session, error)
	// FindOpenCandidates returns sessions whose grace-extended window could
	// contain now. The resolver applies the exact window check in memory.
	FindOpenCandidates(now time.Time) ([]domain.Session, error)
	ListUnfinalized() ([]domain.Session, error)
	List(req PageRequest) (PageResult[domain.Session], error)
	// UpdateTiming mutates the timing fields inside a transaction and invokes
	// afterCommit only once the change is durably committed, so scheduling
	// never acts on data a rollback could undo.
	UpdateTiming(id uint, timing SessionTiming, afterCommit func(*domain.Session)) (*domain.Session, error)
	// MarkFinalized flips the finalized flag exactly once; a second call
	// reports ErrAlreadyFinalized via RowsAffected.
	MarkFinalized(id uint, at time.Time) error
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(id uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.First(&s, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindOpenCandidates(now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	// Grace periods are bounded per session, so a generous fixed pad keeps the
	// query index-friendly while the resolver applies the precise window.
	const pad = 24 * time.Hour
	err := r.db.
		Where("starts_at <= ? AND ends_at >= ?", now.Add(pad), now.Add(-pad)).
		Order("starts_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "find_open_candidates", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_open_candidates", "success")
	return sessions, nil
}

func (r *GormSessionRepository) ListUnfinalized() ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("finalized = ?", false).Order("starts_at ASC").Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_unfinalized", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_unfinalized", "success")
	return sessions, nil
}

func (r *GormSessionRepository) List(req PageRequest) (PageResult[domain.Session], error) {
	req = normalizePageRequest(req)
	var total int64
	if err := r.db.Model(&domain.Session{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list", "error")
		return PageResult[domain.Session]{}, err
	}
	var sessions []domain.Session
	err := r.db.Order("starts_at DESC").Limit(req.PageSize).Offset(req.offset()).Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list", "error")
		return PageResult[domain.Session]{}, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list", "success")
	return PageResult[domain.Session]{
		Items:      sessions,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}

func (r *GormSessionRepository) UpdateTiming(id uint, timing SessionTiming, afterCommit func(*domain.Session)) (*domain.Session, error) {
	var updated domain.Session
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var s domain.Session
		if err := tx.First(&s, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if s.Finalized {
			return ErrAlreadyFinalized
		}
		if err := tx.Model(&s).Updates(map[string]any{
			"starts_at":           timing.StartsAt,
			"ends_at":             timing.EndsAt,
			"late_threshold_at":   timing.LateThresholdAt,
			"open_grace_seconds":  timing.OpenGraceSeconds,
			"close_grace_seconds": timing.CloseGraceSeconds,
		}).Error; err != nil {
			return err
		}
		s.StartsAt = timing.StartsAt
		s.EndsAt = timing.EndsAt
		s.LateThresholdAt = timing.LateThresholdAt
		s.OpenGraceSeconds = timing.OpenGraceSeconds
		s.CloseGraceSeconds = timing.CloseGraceSeconds
		updated = s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "update_timing", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "session", "update_timing", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "update_timing", "success")
	if afterCommit != nil {
		afterCommit(&updated)
	}
	return &updated, nil
}

func (r *GormSessionRepository) MarkFinalized(id uint, at time.Time) error {
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND finalized = ?", id, false).
		Updates(map[string]any{"finalized": true, "finalized_at": at})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "mark_finalized", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "session", "mark_finalized", "noop")
		return ErrAlreadyFinalized
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "mark_finalized", "success")
	return nil
}
