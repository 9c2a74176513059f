package repository

import (
	"context"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"gorm.io/gorm"
)

// deleteBatchSize bounds each retention DELETE so the append-only table is
// never locked for one long statement.
const deleteBatchSize = 5000

type repo struct {
	batchSize int
}

func Provide() domain.Repository {
	return &repo{batchSize: deleteBatchSize}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, actor_type, actor_id, action, target_type, target_id,
			outcome, metadata, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Outcome,
		entry.Metadata,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Error
}

// List returns newest first, fetching one row past Limit so the caller can
// tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})

	for _, eq := range []struct{ column, value string }{
		{"action", filter.Action},
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
		{"actor_type", filter.ActorType},
		{"outcome", filter.Outcome},
	} {
		if value := strings.TrimSpace(eq.value); value != "" {
			stmt = stmt.Where(eq.column+" = ?", value)
		}
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if c := filter.Cursor; c != nil {
		at := c.CreatedAt.UTC()
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, c.ID)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// DeleteBefore removes events older than before in batches and returns the
// total removed. A cancelled ctx stops between batches.
func (r *repo) DeleteBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	query := `DELETE FROM audit_logs WHERE id IN (
		SELECT id FROM audit_logs WHERE created_at < ? ORDER BY id LIMIT ?
	)`
	// MySQL rejects LIMIT inside an IN subquery.
	if db.Dialector != nil && db.Dialector.Name() == "mysql" {
		query = `DELETE FROM audit_logs WHERE created_at < ? ORDER BY id LIMIT ?`
	}

	batch := r.batchSize
	if batch <= 0 {
		batch = deleteBatchSize
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		result := db.WithContext(ctx).Exec(query, before.UTC(), batch)
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(batch) {
			return total, nil
		}
	}
}
