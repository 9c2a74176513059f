package repository

import (
	"context"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const keyColumns = `k.id, k.member_id, k.key_hash, k.fingerprint, k.key_suffix, k.tier, k.status,
	k.revoked_reason, k.issued_at, k.expires_at, k.revoked_at, k.usage_count,
	k.last_used_at, k.last_ip, k.last_user_agent`

const recordQuery = `SELECT ` + keyColumns + `,
	m.status AS member_status, m.tier AS member_tier, m.email_hash AS member_email_hash
	FROM access_keys k
	JOIN members m ON m.id = k.member_id`

// purgeBatchSize bounds each purge DELETE so the key table is never locked
// for one long statement.
const purgeBatchSize = 5000

type repo struct {
	batchSize int
}

func Provide() domain.Repository {
	return &repo{batchSize: purgeBatchSize}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *domain.AccessKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO access_keys (
			id, member_id, key_hash, fingerprint, key_suffix, tier, status,
			revoked_reason, issued_at, expires_at, revoked_at, usage_count,
			last_used_at, last_ip, last_user_agent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.MemberID,
		key.KeyHash,
		key.Fingerprint,
		key.KeySuffix,
		key.Tier,
		key.Status,
		key.RevokedReason,
		key.IssuedAt,
		key.ExpiresAt,
		key.RevokedAt,
		key.UsageCount,
		key.LastUsedAt,
		key.LastIP,
		key.LastUserAgent,
	).Error
}

func (r *repo) FindByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.KeyRecord, error) {
	var record domain.KeyRecord
	err := db.WithContext(ctx).Raw(recordQuery+` WHERE k.fingerprint = ?`, fingerprint).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.KeyRecord, error) {
	var record domain.KeyRecord
	err := db.WithContext(ctx).Raw(recordQuery+` WHERE k.id = ?`, id).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]domain.AccessKey, error) {
	var keys []domain.AccessKey
	err := db.WithContext(ctx).Raw(
		`SELECT `+keyColumns+` FROM access_keys k WHERE k.member_id = ? ORDER BY k.issued_at DESC, k.id DESC`,
		memberID,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) CountActiveByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID, now time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM access_keys WHERE member_id = ? AND status = ? AND expires_at > ?`,
		memberID,
		domain.StatusActive,
		now,
	).Scan(&count).Error
	return count, err
}

func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, mark domain.UsageMark) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE access_keys
		 SET usage_count = usage_count + 1, last_used_at = ?, last_ip = ?, last_user_agent = ?
		 WHERE id = ? AND status = ? AND expires_at > ?
		   AND EXISTS (SELECT 1 FROM members m WHERE m.id = access_keys.member_id AND m.status = ?)`,
		mark.At,
		nullable(mark.IP),
		nullable(mark.UserAgent),
		id,
		domain.StatusActive,
		mark.At,
		memberdomain.StatusActive,
	)
	return result.RowsAffected == 1, result.Error
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE access_keys SET status = ?, revoked_reason = ?, revoked_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusRevoked,
		reason,
		now,
		id,
		domain.StatusActive,
	)
	return result.RowsAffected == 1, result.Error
}

func (r *repo) RevokeAllForMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID, reason string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE access_keys SET status = ?, revoked_reason = ?, revoked_at = ?
		 WHERE member_id = ? AND status = ?`,
		domain.StatusRevoked,
		reason,
		now,
		memberID,
		domain.StatusActive,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Renew(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE access_keys SET expires_at = ?
		 WHERE id = ? AND status = ? AND expires_at > ?`,
		expiresAt,
		id,
		domain.StatusActive,
		now,
	)
	return result.RowsAffected == 1, result.Error
}

// PurgeInactive deletes in batches and returns the total removed. A cancelled
// ctx stops between batches.
func (r *repo) PurgeInactive(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	const ended = `((status = ? AND revoked_at < ?) OR (status = ? AND expires_at < ?))
		AND (last_used_at IS NULL OR last_used_at < ?)`

	query := `DELETE FROM access_keys WHERE id IN (
		SELECT id FROM access_keys WHERE ` + ended + ` ORDER BY id LIMIT ?
	)`
	// MySQL rejects LIMIT inside an IN subquery.
	if db.Dialector != nil && db.Dialector.Name() == "mysql" {
		query = `DELETE FROM access_keys WHERE ` + ended + ` ORDER BY id LIMIT ?`
	}

	batch := r.batchSize
	if batch <= 0 {
		batch = purgeBatchSize
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		result := db.WithContext(ctx).Exec(query,
			domain.StatusRevoked,
			before,
			domain.StatusActive,
			before,
			before,
			batch,
		)
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(batch) {
			return total, nil
		}
	}
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB, now time.Time) (domain.Stats, error) {
	var totals struct {
		TotalKeys          int64
		ActiveKeys         int64
		RevokedKeys        int64
		ExpiredKeys        int64
		TotalVerifications int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS total_keys,
			COALESCE(SUM(CASE WHEN status = ? AND expires_at > ? THEN 1 ELSE 0 END), 0) AS active_keys,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS revoked_keys,
			COALESCE(SUM(CASE WHEN status = ? AND expires_at <= ? THEN 1 ELSE 0 END), 0) AS expired_keys,
			COALESCE(SUM(usage_count), 0) AS total_verifications
		 FROM access_keys`,
		domain.StatusActive, now,
		domain.StatusRevoked,
		domain.StatusActive, now,
	).Scan(&totals).Error
	if err != nil {
		return domain.Stats{}, err
	}

	var rows []struct {
		Tier  access.Tier
		Count int64
	}
	err = db.WithContext(ctx).Raw(
		`SELECT tier, COUNT(*) AS count FROM access_keys
		 WHERE status = ? AND expires_at > ? GROUP BY tier`,
		domain.StatusActive,
		now,
	).Scan(&rows).Error
	if err != nil {
		return domain.Stats{}, err
	}

	byTier := make(map[access.Tier]int64, len(rows))
	for _, row := range rows {
		byTier[row.Tier] = row.Count
	}

	return domain.Stats{
		TotalKeys:          totals.TotalKeys,
		ActiveKeys:         totals.ActiveKeys,
		RevokedKeys:        totals.RevokedKeys,
		ExpiredKeys:        totals.ExpiredKeys,
		ActiveByTier:       byTier,
		TotalVerifications: totals.TotalVerifications,
	}, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
