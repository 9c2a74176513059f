package domain

import (
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	// StatusExpired is derived from ExpiresAt and never stored.
	StatusExpired Status = "expired"
)

// AccessKey never holds the raw key. Fingerprint is a lookup handle only;
// KeyHash is what a presented key is checked against.
type AccessKey struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	MemberID      snowflake.ID `gorm:"column:member_id;not null;index:idx_access_keys_member" json:"member_id"`
	KeyHash       string       `gorm:"column:key_hash;type:text;not null" json:"-"`
	Fingerprint   string       `gorm:"column:fingerprint;type:text;not null;uniqueIndex:ux_access_keys_fingerprint" json:"-"`
	KeySuffix     string       `gorm:"column:key_suffix;type:text;not null" json:"key_suffix"`
	Tier          access.Tier  `gorm:"type:text;not null" json:"tier"`
	Status        Status       `gorm:"type:text;not null;default:active" json:"status"`
	RevokedReason *string      `gorm:"column:revoked_reason;type:text" json:"revoked_reason,omitempty"`
	IssuedAt      time.Time    `gorm:"column:issued_at;not null" json:"issued_at"`
	ExpiresAt     time.Time    `gorm:"column:expires_at;not null" json:"expires_at"`
	RevokedAt     *time.Time   `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	UsageCount    int64        `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	LastUsedAt    *time.Time   `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
	LastIP        *string      `gorm:"column:last_ip;type:text" json:"last_ip,omitempty"`
	LastUserAgent *string      `gorm:"column:last_user_agent;type:text" json:"last_user_agent,omitempty"`
}

func (AccessKey) TableName() string { return "access_keys" }

// EffectiveStatus folds expiry into the stored status.
func (k AccessKey) EffectiveStatus(now time.Time) Status {
	if k.Status == StatusRevoked {
		return StatusRevoked
	}
	if !now.Before(k.ExpiresAt) {
		return StatusExpired
	}
	return k.Status
}

// KeyRecord is an access key joined with the owning member's current state.
type KeyRecord struct {
	AccessKey
	MemberStatus    memberdomain.Status `gorm:"column:member_status"`
	MemberTier      access.Tier         `gorm:"column:member_tier"`
	MemberEmailHash string              `gorm:"column:member_email_hash"`
}

type Stats struct {
	TotalKeys          int64                 `json:"total_keys"`
	ActiveKeys         int64                 `json:"active_keys"`
	RevokedKeys        int64                 `json:"revoked_keys"`
	ExpiredKeys        int64                 `json:"expired_keys"`
	ActiveByTier       map[access.Tier]int64 `json:"active_by_tier"`
	TotalVerifications int64                 `json:"total_verifications"`
}
