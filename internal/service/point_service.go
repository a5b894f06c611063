package service

import (
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

// PointService appends attendance outcomes to the point ledger. The
// attendance core treats it as fire-and-forget: a failed ledger write is
// logged by the caller and never fails a scan or a finalize pass.
type PointService struct {
	points repository.PointRepository
}

func NewPointService(points repository.PointRepository) *PointService {
	return &PointService{points: points}
}

func (s *PointService) Record(memberID, sessionID uint, status domain.AttendanceStatus, occurredAt time.Time, weekNumber int) error {
	return s.points.Create(&domain.PointLog{
		MemberID:   memberID,
		SessionID:  sessionID,
		Status:     status,
		Points:     status.Points(),
		WeekNumber: weekNumber,
		OccurredAt: occurredAt,
	})
}

func (s *PointService) SummaryFor(memberID uint) (repository.PointSummary, error) {
	return s.points.SummaryByMember(memberID)
}

func (s *PointService) HistoryFor(memberID uint) ([]domain.PointLog, error) {
	return s.points.ListByMember(memberID)
}
