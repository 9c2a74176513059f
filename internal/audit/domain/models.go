package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem    ActorType = "system"
	ActorTypeAdmin     ActorType = "admin"
	ActorTypeMember    ActorType = "member"
	ActorTypeAnonymous ActorType = "anonymous"
)

const (
	ActionKeyIssued             = "KEY_ISSUED"
	ActionKeyVerified           = "KEY_VERIFIED"
	ActionKeyVerificationFailed = "KEY_VERIFICATION_FAILED"
	ActionKeyRevoked            = "KEY_REVOKED"
	ActionKeyRenewed            = "KEY_RENEWED"
	ActionKeysPurged            = "KEYS_PURGED"
	ActionMemberSuspended       = "MEMBER_SUSPENDED"
	ActionMemberReinstated      = "MEMBER_REINSTATED"
	ActionMemberTierChanged     = "MEMBER_TIER_CHANGED"
	ActionAdminAccessDenied     = "ADMIN_ACCESS_DENIED"
)

const (
	TargetTypeMember    = "member"
	TargetTypeAccessKey = "access_key"
	TargetTypeAnonymous = "anonymous"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditLog is append-only. Only the retention job deletes rows.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index:idx_audit_logs_action" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index:idx_audit_logs_target" json:"target_id,omitempty"`
	Outcome    string            `gorm:"type:text;not null;default:success" json:"outcome"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_logs_created_at" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	Outcome    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
	DeleteBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
