package domain

import (
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Member is never hard-deleted; suspension is a status change so the audit
// trail keeps resolving.
type Member struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	EmailHash       string       `gorm:"column:email_hash;type:text;not null;uniqueIndex:ux_members_email_hash" json:"-"`
	DisplayName     string       `gorm:"column:display_name;type:text;not null;default:''" json:"display_name"`
	Tier            access.Tier  `gorm:"type:text;not null" json:"tier"`
	Status          Status       `gorm:"type:text;not null;default:active" json:"status"`
	SuspendedReason *string      `gorm:"column:suspended_reason;type:text" json:"suspended_reason,omitempty"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
	LastSeenAt      *time.Time   `gorm:"column:last_seen_at" json:"last_seen_at,omitempty"`
}

func (Member) TableName() string { return "members" }

func (m Member) Active() bool {
	return m.Status == StatusActive
}
