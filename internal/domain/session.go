package domain

import "time"

type Session struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Title             string     `gorm:"size:256;not null" json:"title"`
	StartsAt          time.Time  `gorm:"index;not null" json:"starts_at"`
	EndsAt            time.Time  `gorm:"not null" json:"ends_at"`
	OpenGraceSeconds  int        `gorm:"not null;default:0" json:"open_grace_seconds"`
	CloseGraceSeconds int        `gorm:"not null;default:0" json:"close_grace_seconds"`
	LateThresholdAt   time.Time  `gorm:"not null" json:"late_threshold_at"`
	Bonus             bool       `gorm:"not null;default:false" json:"bonus"`
	WeekNumber        int        `gorm:"not null;default:0" json:"week_number"`
	Finalized         bool       `gorm:"index;not null;default:false" json:"finalized"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OpenWindow returns the inclusive range during which the session accepts
// check-ins, extended by the configured grace periods.
func (s *Session) OpenWindow() (from, to time.Time) {
	from = s.StartsAt.Add(-time.Duration(s.OpenGraceSeconds) * time.Second)
	to = s.EndsAt.Add(time.Duration(s.CloseGraceSeconds) * time.Second)
	return from, to
}

// AcceptsCheckInAt reports whether now falls inside the open window.
func (s *Session) AcceptsCheckInAt(now time.Time) bool {
	from, to := s.OpenWindow()
	return !now.Before(from) && !now.After(to)
}

// AbsenceBoundary is the instant after which a member with no attendance
// record is treated as definitively absent. The live-scan late threshold and
// the finalize boundary intentionally differ by the safety offset; the slack
// absorbs clock skew between scanners and the scheduler.
func (s *Session) AbsenceBoundary(lateWindow, safetyOffset time.Duration) time.Time {
	return s.StartsAt.Add(lateWindow + safetyOffset)
}
