package repository

import (
	"context"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const memberColumns = `id, email_hash, display_name, tier, status, suspended_reason, created_at, updated_at, last_seen_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO members (`+memberColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.EmailHash,
		member.DisplayName,
		member.Tier,
		member.Status,
		member.SuspendedReason,
		member.CreatedAt,
		member.UpdatedAt,
		member.LastSeenAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT `+memberColumns+` FROM members WHERE id = ?`,
		id,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) FindByEmailHash(ctx context.Context, db *gorm.DB, emailHash string) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT `+memberColumns+` FROM members WHERE email_hash = ?`,
		emailHash,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier access.Tier, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE members SET tier = ?, updated_at = ? WHERE id = ? AND tier <> ?`,
		tier,
		now,
		id,
		tier,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, reason *string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE members SET status = ?, suspended_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		reason,
		now,
		id,
		from,
	)
	return result.RowsAffected == 1, result.Error
}

func (r *repo) TouchLastSeen(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE members SET last_seen_at = ? WHERE id = ?`,
		now,
		id,
	).Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		Count  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM members GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *repo) CountByTier(ctx context.Context, db *gorm.DB) (map[access.Tier]int64, error) {
	var rows []struct {
		Tier  access.Tier
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT tier, COUNT(*) AS count FROM members WHERE status = ? GROUP BY tier`,
		domain.StatusActive,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[access.Tier]int64, len(rows))
	for _, row := range rows {
		out[row.Tier] = row.Count
	}
	return out, nil
}
