package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type keyStore struct {
	conn   *gorm.DB
	node   *snowflake.Node
	member snowflake.ID
	repo   *repo
	seq    int
}

func newKeyStore(t *testing.T, batchSize int) *keyStore {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&memberdomain.Member{}, &domain.AccessKey{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	member := memberdomain.Member{
		ID:        node.Generate(),
		EmailHash: access.HashEmail("reader@example.com"),
		Tier:      access.TierInnerCircle,
		Status:    memberdomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&member).Error)

	return &keyStore{conn: conn, node: node, member: member.ID, repo: &repo{batchSize: batchSize}}
}

func (s *keyStore) add(t *testing.T, status domain.Status, issuedAt, expiresAt time.Time, revokedAt, lastUsedAt *time.Time) snowflake.ID {
	t.Helper()
	s.seq++
	key := &domain.AccessKey{
		ID:          s.node.Generate(),
		MemberID:    s.member,
		KeyHash:     "hash",
		Fingerprint: fmt.Sprintf("fp-%d", s.seq),
		KeySuffix:   fmt.Sprintf("%08d", s.seq),
		Tier:        access.TierInnerCircle,
		Status:      status,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		RevokedAt:   revokedAt,
		LastUsedAt:  lastUsedAt,
	}
	require.NoError(t, s.repo.Insert(context.Background(), s.conn, key))
	return key.ID
}

func TestPurgeInactiveRunsInBatches(t *testing.T) {
	store := newKeyStore(t, 2)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.AddDate(0, -2, 0)
	ended := cutoff.AddDate(0, 0, -3)
	recent := cutoff.AddDate(0, 0, 3)

	for i := 0; i < 5; i++ {
		store.add(t, domain.StatusRevoked, old, cutoff.AddDate(1, 0, 0), &ended, nil)
	}
	store.add(t, domain.StatusActive, old, ended, nil, nil)

	usedLately := store.add(t, domain.StatusRevoked, old, cutoff.AddDate(1, 0, 0), &ended, &recent)
	live := store.add(t, domain.StatusActive, old, cutoff.AddDate(1, 0, 0), nil, nil)

	purged, err := store.repo.PurgeInactive(context.Background(), store.conn, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(6), purged)

	var remaining []snowflake.ID
	require.NoError(t, store.conn.Model(&domain.AccessKey{}).Order("id").Pluck("id", &remaining).Error)
	assert.Equal(t, []snowflake.ID{usedLately, live}, remaining)

	var members int64
	require.NoError(t, store.conn.Model(&memberdomain.Member{}).Count(&members).Error)
	assert.Equal(t, int64(1), members)
}

func TestPurgeInactiveStopsOnCancelledContext(t *testing.T) {
	store := newKeyStore(t, 2)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ended := cutoff.AddDate(0, 0, -3)
	store.add(t, domain.StatusRevoked, ended, cutoff.AddDate(1, 0, 0), &ended, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	purged, err := store.repo.PurgeInactive(ctx, store.conn, cutoff)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, purged)

	var count int64
	require.NoError(t, store.conn.Model(&domain.AccessKey{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
