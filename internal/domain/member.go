package domain

import "time"

type MemberRole string

const (
	RoleMember   MemberRole = "member"
	RoleOperator MemberRole = "operator"
	RoleAdmin    MemberRole = "admin"
)

type Member struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:128;not null" json:"name"`
	Email        string     `gorm:"size:256;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:128;not null" json:"-"`
	Generation   int        `gorm:"not null;default:0" json:"generation"`
	Role         MemberRole `gorm:"size:32;not null;default:'member'" json:"role"`
	Approved     bool       `gorm:"index;not null;default:false" json:"approved"`
	Onboarded    bool       `gorm:"index;not null;default:false" json:"onboarded"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ExpectedToAttend reports whether the member belongs to the set the
// finalizer holds accountable for a session.
func (m *Member) ExpectedToAttend() bool {
	return m.Approved && m.Onboarded
}
