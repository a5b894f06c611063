package domain

import "time"

type PointLog struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	MemberID   uint             `gorm:"index;not null" json:"member_id"`
	SessionID  uint             `gorm:"index;not null" json:"session_id"`
	Status     AttendanceStatus `gorm:"size:32;not null" json:"status"`
	Points     int              `gorm:"not null" json:"points"`
	WeekNumber int              `gorm:"not null;default:0" json:"week_number"`
	OccurredAt time.Time        `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time        `json:"created_at"`
}
