package domain

import "time"

type AttendanceStatus string

const (
	StatusPresent            AttendanceStatus = "PRESENT"
	StatusPresentBonus       AttendanceStatus = "PRESENT_BONUS"
	StatusLate               AttendanceStatus = "LATE"
	StatusExcused            AttendanceStatus = "EXCUSED"
	StatusAbsent             AttendanceStatus = "ABSENT"
	StatusAbsentWithDocument AttendanceStatus = "ABSENT_WITH_DOCUMENT"
	StatusAbsentWithCause    AttendanceStatus = "ABSENT_WITH_CAUSE"
)

// Points returns the fixed weight the point ledger applies for a status.
// The weights are policy constants owned by the organization bylaws; the
// attendance core only selects the status.
func (s AttendanceStatus) Points() int {
	switch s {
	case StatusPresent, StatusPresentBonus:
		return 0
	case StatusLate:
		return -5
	case StatusExcused, StatusAbsentWithDocument:
		return -10
	case StatusAbsentWithCause:
		return -15
	case StatusAbsent:
		return -20
	default:
		return 0
	}
}

func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusPresentBonus, StatusLate, StatusExcused,
		StatusAbsent, StatusAbsentWithDocument, StatusAbsentWithCause:
		return true
	}
	return false
}

type AttendanceRecord struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	SessionID  uint             `gorm:"uniqueIndex:idx_attendance_session_member;not null" json:"session_id"`
	MemberID   uint             `gorm:"uniqueIndex:idx_attendance_session_member;not null" json:"member_id"`
	Status     AttendanceStatus `gorm:"size:32;not null" json:"status"`
	RecordedAt time.Time        `gorm:"not null" json:"recorded_at"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ClassifyAttendance maps an arrival instant to a live check-in status.
// Arriving at exactly StartsAt counts as late, not present; the boundary is
// inclusive and changes point totals, so it must not drift.
func ClassifyAttendance(session *Session, now time.Time) AttendanceStatus {
	if now.After(session.LateThresholdAt) {
		return StatusAbsent
	}
	if !now.Before(session.StartsAt) {
		return StatusLate
	}
	if session.Bonus {
		return StatusPresentBonus
	}
	return StatusPresent
}
