package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// UsageMark is the origin recorded on a successful verification.
type UsageMark struct {
	At        time.Time
	IP        string
	UserAgent string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *AccessKey) error
	FindByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*KeyRecord, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*KeyRecord, error)
	ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]AccessKey, error)
	CountActiveByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID, now time.Time) (int64, error)

	// MarkUsed bumps usage only if the key is active, unexpired and owned by an
	// active member, all in one statement. It reports whether a row matched.
	MarkUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, mark UsageMark) (bool, error)
	// Revoke transitions an active key to revoked and reports whether this
	// call performed the transition.
	Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
	RevokeAllForMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID, reason string, now time.Time) (int64, error)
	// Renew extends an active, unexpired key. Revoked or expired keys never match.
	Renew(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, now time.Time) (bool, error)
	// PurgeInactive deletes revoked or expired keys unused since before.
	PurgeInactive(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)

	Stats(ctx context.Context, db *gorm.DB, now time.Time) (Stats, error)
}
