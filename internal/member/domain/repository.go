package domain

import (
	"context"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	FindByEmailHash(ctx context.Context, db *gorm.DB, emailHash string) (*Member, error)
	UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier access.Tier, now time.Time) (bool, error)
	// UpdateStatus moves a member from one status to another and reports
	// whether a row changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, reason *string, now time.Time) (bool, error)
	TouchLastSeen(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)
	CountByTier(ctx context.Context, db *gorm.DB) (map[access.Tier]int64, error)
}
