package domain

import (
	"context"
	"errors"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/bwmarrin/snowflake"
)

// Verification reasons. They are outcomes, not errors.
const (
	ReasonEmpty         = "empty"
	ReasonInvalidFormat = "invalid_format"
	ReasonNotFound      = "not_found"
	ReasonRevoked       = "revoked"
	ReasonExpired       = "expired"
	ReasonSuspended     = "suspended"
	ReasonRateLimited   = "rate_limited"
)

// Revocation reasons recorded when callers give none.
const (
	RevokeReasonAdmin           = "admin"
	RevokeReasonMemberSuspended = "member_suspended"
)

type VerificationResult struct {
	Valid     bool        `json:"valid"`
	MemberID  string      `json:"member_id,omitempty"`
	KeyID     string      `json:"key_id,omitempty"`
	Tier      access.Tier `json:"tier,omitempty"`
	KeySuffix string      `json:"key_suffix,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	// EmailHash lets the caller apply the staff and override policy.
	EmailHash string `json:"-"`
}

// Origin describes where a presented key came from.
type Origin struct {
	IP        string
	UserAgent string
}

// IssueRequest identifies the member either by id or by email; email creates
// the member when it does not exist yet. Issuing raises the member tier to
// Tier when higher and never lowers it.
type IssueRequest struct {
	MemberID    snowflake.ID
	Email       string
	DisplayName string
	Tier        access.Tier
	// TTL overrides the configured key lifetime when positive.
	TTL time.Duration
}

type IssueResult struct {
	RawKey    string      `json:"key"`
	KeyID     string      `json:"key_id"`
	KeySuffix string      `json:"key_suffix"`
	MemberID  string      `json:"member_id"`
	Tier      access.Tier `json:"tier"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// KeyView is the admin listing row.
type KeyView struct {
	ID         string      `json:"id"`
	KeySuffix  string      `json:"key_suffix"`
	Tier       access.Tier `json:"tier"`
	Status     Status      `json:"status"`
	IssuedAt   time.Time   `json:"issued_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	RevokedAt  *time.Time  `json:"revoked_at,omitempty"`
	Reason     *string     `json:"revoked_reason,omitempty"`
	UsageCount int64       `json:"usage_count"`
	LastUsedAt *time.Time  `json:"last_used_at,omitempty"`
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (IssueResult, error)
	Verify(ctx context.Context, rawKey string, origin Origin) (VerificationResult, error)
	// VerifySession re-checks a key already verified for a session, without
	// the password hash comparison.
	VerifySession(ctx context.Context, keyID, memberID snowflake.ID) (VerificationResult, error)
	// Revoke accepts a raw key, a fingerprint or a key id. It returns false
	// when nothing transitioned, including an already revoked key.
	Revoke(ctx context.Context, rawKeyOrHash string, reason string) (bool, error)
	RevokeAllForMember(ctx context.Context, memberID snowflake.ID, reason string) (int64, error)
	Renew(ctx context.Context, keyID snowflake.ID) (KeyView, error)
	ListForMember(ctx context.Context, memberID snowflake.ID) ([]KeyView, error)
	Stats(ctx context.Context) (Stats, error)
	// Purge removes keys that ended before the cutoff and saw no use since.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

var (
	ErrInvalidTier      = access.ErrInvalidTier
	ErrInvalidTTL       = errors.New("invalid_ttl")
	ErrInvalidKeyID     = errors.New("invalid_key_id")
	ErrInvalidReference = errors.New("invalid_key_reference")
	ErrKeyLimitReached  = errors.New("key_limit_reached")
	ErrNotFound         = errors.New("key_not_found")

	// ErrStoreUnavailable marks a persistence fault. Callers must deny access.
	ErrStoreUnavailable = errors.New("store_unavailable")
)
