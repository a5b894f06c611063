package domain

import "time"

type ExcuseKind string

const (
	ExcuseLate           ExcuseKind = "LATE"
	ExcusePersonal       ExcuseKind = "PERSONAL"
	ExcuseWithDocument   ExcuseKind = "WITH_DOCUMENT"
	ExcuseUnavoidable    ExcuseKind = "UNAVOIDABLE"
	ExcuseOfficialLeave  ExcuseKind = "OFFICIAL_LEAVE"
)

type ExcuseReport struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SessionID  uint       `gorm:"uniqueIndex:idx_excuse_session_member;not null" json:"session_id"`
	MemberID   uint       `gorm:"uniqueIndex:idx_excuse_session_member;not null" json:"member_id"`
	Kind       ExcuseKind `gorm:"size:32;not null" json:"kind"`
	Reason     string     `gorm:"size:1024" json:"reason"`
	Approved   bool       `gorm:"not null;default:false" json:"approved"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FinalStatus maps an excuse submission to the status the finalizer records
// for a member who never scanned. A submitted but unapproved report does not
// soften the outcome.
func (e *ExcuseReport) FinalStatus() AttendanceStatus {
	if e == nil {
		return StatusAbsent
	}
	if !e.Approved {
		return StatusAbsent
	}
	switch e.Kind {
	case ExcuseLate:
		return StatusLate
	case ExcuseWithDocument:
		return StatusAbsentWithDocument
	case ExcuseUnavoidable, ExcuseOfficialLeave:
		return StatusExcused
	case ExcusePersonal:
		return StatusAbsentWithCause
	default:
		return StatusAbsent
	}
}
