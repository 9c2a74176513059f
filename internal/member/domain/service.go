package domain

import (
	"context"
	"errors"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/bwmarrin/snowflake"
)

type Stats struct {
	Total    int64                 `json:"total"`
	ByStatus map[Status]int64      `json:"by_status"`
	ByTier   map[access.Tier]int64 `json:"by_tier"`
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (Member, error)
	Suspend(ctx context.Context, id snowflake.ID, reason string) (Member, error)
	Reinstate(ctx context.Context, id snowflake.ID) (Member, error)
	SetTier(ctx context.Context, id snowflake.ID, tier access.Tier) (Member, error)
	Stats(ctx context.Context) (Stats, error)
}

var (
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidMember = errors.New("invalid_member")
	ErrInvalidReason = errors.New("invalid_reason")
	ErrNotFound      = errors.New("member_not_found")
	ErrSuspended     = errors.New("member_suspended")
)
