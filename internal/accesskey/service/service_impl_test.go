package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	"github.com/abrahamoflondon/innercircle/internal/accesskey/repository"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	auditrepository "github.com/abrahamoflondon/innercircle/internal/audit/repository"
	auditservice "github.com/abrahamoflondon/innercircle/internal/audit/service"
	"github.com/abrahamoflondon/innercircle/internal/cache"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	"github.com/abrahamoflondon/innercircle/internal/config"
	"github.com/abrahamoflondon/innercircle/internal/keyhash"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	memberrepository "github.com/abrahamoflondon/innercircle/internal/member/repository"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testHashParams = keyhash.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	clock   *clock.FakeClock
	members memberdomain.Repository
}

type option func(*Params)

func withRepo(wrap func(domain.Repository) domain.Repository) option {
	return func(p *Params) { p.Repo = wrap(p.Repo) }
}

func withLimiter(l UnlockLimiter) option {
	return func(p *Params) { p.Limiter = l }
}

func withSettings(fn func(*config.InnerCircleConfig)) option {
	return func(p *Params) { fn(&p.Config.InnerCircle) }
}

func withAudit(a auditdomain.Service) option {
	return func(p *Params) { p.Audit = a }
}

func withMetrics(m *obsmetrics.Metrics) option {
	return func(p *Params) { p.Metrics = m }
}

func newFixture(t *testing.T, opts ...option) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&memberdomain.Member{}, &domain.AccessKey{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: clk,
	})
	members := memberrepository.Provide()

	params := Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		MemberRepo: members,
		Audit:      audit,
		Hasher:     keyhash.New(testHashParams),
		Config: config.Config{InnerCircle: config.InnerCircleConfig{
			KeyTTL:           90 * 24 * time.Hour,
			MaxKeysPerMember: 3,
			StoreTimeout:     2 * time.Second,
		}},
		Clock: clk,
		Cache: cache.NewVerifiedKeyCache(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	return fixture{
		svc:     New(params).(*Service),
		db:      conn,
		clock:   clk,
		members: members,
	}
}

func (f fixture) issue(t *testing.T, email string, tier access.Tier) domain.IssueResult {
	t.Helper()
	issued, err := f.svc.Issue(context.Background(), domain.IssueRequest{Email: email, Tier: tier})
	require.NoError(t, err)
	return issued
}

func (f fixture) countAudit(t *testing.T, action string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", action).Count(&count).Error)
	return count
}

func (f fixture) storedKey(t *testing.T, id string) domain.AccessKey {
	t.Helper()
	var key domain.AccessKey
	require.NoError(t, f.db.Where("id = ?", mustID(t, id)).First(&key).Error)
	return key
}

type countingRepo struct {
	domain.Repository
	lookups atomic.Int64
}

func (r *countingRepo) FindByFingerprint(ctx context.Context, conn *gorm.DB, fingerprint string) (*domain.KeyRecord, error) {
	r.lookups.Add(1)
	return r.Repository.FindByFingerprint(ctx, conn, fingerprint)
}

// blockingRepo never answers a lookup before the caller's deadline.
type blockingRepo struct {
	domain.Repository
}

func (blockingRepo) FindByFingerprint(ctx context.Context, _ *gorm.DB, _ string) (*domain.KeyRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingInsertRepo refuses every key insert.
type failingInsertRepo struct {
	domain.Repository
}

func (failingInsertRepo) Insert(context.Context, *gorm.DB, *domain.AccessKey) error {
	return errors.New("disk full")
}

// failingAudit cannot store anything.
type failingAudit struct {
	auditdomain.Service
	attempts atomic.Int64
}

func (a *failingAudit) Record(context.Context, auditdomain.Event) error {
	a.attempts.Add(1)
	return errors.New("audit store offline")
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (l stubLimiter) Allow(context.Context, string) (bool, error) {
	return l.allowed, l.err
}

func TestIssueThenVerifyGrantsTier(t *testing.T) {
	f := newFixture(t)

	issued := f.issue(t, "Reader@Example.com", access.TierInnerCircle)
	assert.Regexp(t, `^icl_[A-Za-z0-9_-]{43}$`, issued.RawKey)
	assert.Equal(t, issued.RawKey[len(issued.RawKey)-8:], issued.KeySuffix)

	result, err := f.svc.Verify(context.Background(), "  "+issued.RawKey+"\n", domain.Origin{IP: "203.0.113.7", UserAgent: "test"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, access.TierInnerCircle, result.Tier)
	assert.Equal(t, issued.MemberID, result.MemberID)
	assert.Equal(t, issued.KeyID, result.KeyID)
	assert.Equal(t, access.HashEmail("reader@example.com"), result.EmailHash)
	assert.Empty(t, result.Reason)

	stored := f.storedKey(t, issued.KeyID)
	assert.Equal(t, int64(1), stored.UsageCount)
	require.NotNil(t, stored.LastIP)
	assert.Equal(t, "203.0.113.7", *stored.LastIP)
	assert.NotEqual(t, issued.RawKey, stored.KeyHash)
	assert.Equal(t, domain.Fingerprint(issued.RawKey), stored.Fingerprint)

	assert.Equal(t, int64(1), f.countAudit(t, auditdomain.ActionKeyIssued))
	assert.Equal(t, int64(1), f.countAudit(t, auditdomain.ActionKeyVerified))
}

func TestIssueReusesMemberByEmail(t *testing.T) {
	f := newFixture(t)

	first := f.issue(t, "reader@example.com", access.TierInnerCircle)
	second := f.issue(t, " READER@example.com ", access.TierInnerCirclePlus)
	assert.Equal(t, first.MemberID, second.MemberID)

	// the member now holds the highest tier granted so far
	result, err := f.svc.Verify(context.Background(), first.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, access.TierInnerCirclePlus, result.Tier)
}

func TestIssueNeverLowersMemberTier(t *testing.T) {
	f := newFixture(t)

	elite := f.issue(t, "reader@example.com", access.TierInnerCircleElite)
	basic := f.issue(t, "reader@example.com", access.TierInnerCircle)
	require.Equal(t, elite.MemberID, basic.MemberID)
	assert.Equal(t, access.TierInnerCircle, basic.Tier)

	for _, raw := range []string{elite.RawKey, basic.RawKey} {
		result, err := f.svc.Verify(context.Background(), raw, domain.Origin{})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, access.TierInnerCircleElite, result.Tier)
	}

	member, err := f.members.FindByID(context.Background(), f.db, mustID(t, elite.MemberID))
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, access.TierInnerCircleElite, member.Tier)
}

func TestIssueRollsBackNewMemberWhenKeyInsertFails(t *testing.T) {
	f := newFixture(t, withRepo(func(r domain.Repository) domain.Repository { return failingInsertRepo{Repository: r} }))

	_, err := f.svc.Issue(context.Background(), domain.IssueRequest{Email: "reader@example.com", Tier: access.TierInnerCircle})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	var members, keys int64
	require.NoError(t, f.db.Model(&memberdomain.Member{}).Count(&members).Error)
	require.NoError(t, f.db.Model(&domain.AccessKey{}).Count(&keys).Error)
	assert.Zero(t, members)
	assert.Zero(t, keys)
	assert.Zero(t, f.countAudit(t, auditdomain.ActionKeyIssued))
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, domain.IssueRequest{Email: "reader@example.com", Tier: "gold"})
	assert.ErrorIs(t, err, domain.ErrInvalidTier)

	_, err = f.svc.Issue(ctx, domain.IssueRequest{Email: "not-an-email", Tier: access.TierInnerCircle})
	assert.ErrorIs(t, err, memberdomain.ErrInvalidEmail)

	_, err = f.svc.Issue(ctx, domain.IssueRequest{Email: "reader@example.com", Tier: access.TierInnerCircle, TTL: time.Hour})
	assert.ErrorIs(t, err, domain.ErrInvalidTTL)

	_, err = f.svc.Issue(ctx, domain.IssueRequest{Email: "reader@example.com", Tier: access.TierInnerCircle, TTL: 400 * 24 * time.Hour})
	assert.ErrorIs(t, err, domain.ErrInvalidTTL)

	_, err = f.svc.Issue(ctx, domain.IssueRequest{MemberID: 42, Tier: access.TierInnerCircle})
	assert.ErrorIs(t, err, memberdomain.ErrNotFound)

	issued, err := f.svc.Issue(ctx, domain.IssueRequest{Email: "reader@example.com", Tier: access.TierInnerCircle, TTL: 7 * 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), issued.ExpiresAt)
}

func TestIssueEnforcesKeyLimit(t *testing.T) {
	f := newFixture(t, withSettings(func(c *config.InnerCircleConfig) { c.MaxKeysPerMember = 2 }))

	first := f.issue(t, "reader@example.com", access.TierInnerCircle)
	f.issue(t, "reader@example.com", access.TierInnerCircle)

	_, err := f.svc.Issue(context.Background(), domain.IssueRequest{Email: "reader@example.com", Tier: access.TierInnerCircle})
	assert.ErrorIs(t, err, domain.ErrKeyLimitReached)

	// revoked keys no longer count against the cap
	revoked, err := f.svc.Revoke(context.Background(), first.RawKey, "")
	require.NoError(t, err)
	require.True(t, revoked)
	f.issue(t, "reader@example.com", access.TierInnerCircle)
}

func TestIssueRefusesSuspendedMember(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)

	memberID, err := snowflake.ParseString(issued.MemberID)
	require.NoError(t, err)
	reason := "chargeback"
	changed, err := f.members.UpdateStatus(context.Background(), f.db, memberID, memberdomain.StatusActive, memberdomain.StatusSuspended, &reason, f.clock.Now())
	require.NoError(t, err)
	require.True(t, changed)

	_, err = f.svc.Issue(context.Background(), domain.IssueRequest{MemberID: memberID, Tier: access.TierInnerCircle})
	assert.ErrorIs(t, err, memberdomain.ErrSuspended)

	result, err := f.svc.Verify(context.Background(), issued.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonSuspended, result.Reason)
}

func TestVerifyRejectsMalformedInputWithoutLookup(t *testing.T) {
	counter := &countingRepo{}
	f := newFixture(t, withRepo(func(r domain.Repository) domain.Repository {
		counter.Repository = r
		return counter
	}))

	cases := []struct {
		raw    string
		reason string
	}{
		{"", domain.ReasonEmpty},
		{"   ", domain.ReasonEmpty},
		{"not-a-key", domain.ReasonInvalidFormat},
		{"icl_short", domain.ReasonInvalidFormat},
		{"icl_has spaces in the body of the key", domain.ReasonInvalidFormat},
		{"abcd-abcd-abcd", domain.ReasonInvalidFormat},
	}
	for _, tc := range cases {
		result, err := f.svc.Verify(context.Background(), tc.raw, domain.Origin{})
		require.NoError(t, err, tc.raw)
		assert.False(t, result.Valid, tc.raw)
		assert.Equal(t, tc.reason, result.Reason, tc.raw)
	}

	assert.Zero(t, counter.lookups.Load())
	assert.Zero(t, f.countAudit(t, auditdomain.ActionKeyVerificationFailed))
}

func TestVerifyUnknownKeyIsAnonymous(t *testing.T) {
	f := newFixture(t)

	raw, err := domain.GenerateKey()
	require.NoError(t, err)

	result, err := f.svc.Verify(context.Background(), raw, domain.Origin{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonNotFound, result.Reason)
	assert.Empty(t, result.MemberID)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionKeyVerificationFailed).First(&entry).Error)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "anon:"+domain.Fingerprint(raw)[:16], *entry.TargetID)
	assert.Equal(t, string(auditdomain.ActorTypeAnonymous), entry.ActorType)
	assert.Equal(t, auditdomain.OutcomeFailure, entry.Outcome)
	assert.NotContains(t, entry.Metadata, "key")
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)

	revoked, err := f.svc.Revoke(context.Background(), issued.RawKey, "leaked")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = f.svc.Revoke(context.Background(), issued.RawKey, "leaked")
	require.NoError(t, err)
	assert.False(t, revoked)

	result, err := f.svc.Verify(context.Background(), issued.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonRevoked, result.Reason)
	assert.Equal(t, issued.MemberID, result.MemberID)

	stored := f.storedKey(t, issued.KeyID)
	assert.Equal(t, domain.StatusRevoked, stored.Status)
	require.NotNil(t, stored.RevokedReason)
	assert.Equal(t, "leaked", *stored.RevokedReason)
	assert.Equal(t, int64(1), f.countAudit(t, auditdomain.ActionKeyRevoked))
}

func TestRevokeAcceptsFingerprintAndID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byFingerprint := f.issue(t, "one@example.com", access.TierInnerCircle)
	revoked, err := f.svc.Revoke(ctx, domain.Fingerprint(byFingerprint.RawKey), "")
	require.NoError(t, err)
	assert.True(t, revoked)

	byID := f.issue(t, "two@example.com", access.TierInnerCircle)
	revoked, err = f.svc.Revoke(ctx, byID.KeyID, "")
	require.NoError(t, err)
	assert.True(t, revoked)
	stored := f.storedKey(t, byID.KeyID)
	require.NotNil(t, stored.RevokedReason)
	assert.Equal(t, domain.RevokeReasonAdmin, *stored.RevokedReason)

	revoked, err = f.svc.Revoke(ctx, "999999", "")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = f.svc.Revoke(ctx, "definitely not a key", "")
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = f.svc.Revoke(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestRevokedKeyStaysRevokedUnderConcurrentVerification(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan domain.VerificationResult, 16)
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Verify(ctx, issued.RawKey, domain.Origin{})
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}()
	}

	revoked, err := f.svc.Revoke(ctx, issued.RawKey, "leaked")
	require.NoError(t, err)
	require.True(t, revoked)

	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected verification error: %v", err)
	}
	for result := range results {
		if !result.Valid {
			assert.Equal(t, domain.ReasonRevoked, result.Reason)
		}
	}

	for i := 0; i < 4; i++ {
		result, err := f.svc.Verify(ctx, issued.RawKey, domain.Origin{})
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, domain.ReasonRevoked, result.Reason)
	}
}

func TestExpiredKeyIsNotMutated(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)

	f.clock.Advance(91 * 24 * time.Hour)

	result, err := f.svc.Verify(context.Background(), issued.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonExpired, result.Reason)

	stored := f.storedKey(t, issued.KeyID)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.Equal(t, domain.StatusExpired, stored.EffectiveStatus(f.clock.Now()))
	assert.Zero(t, stored.UsageCount)

	_, err = f.svc.Renew(context.Background(), mustID(t, issued.KeyID))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenewExtendsActiveKeyOnly(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)
	keyID := mustID(t, issued.KeyID)

	f.clock.Advance(30 * 24 * time.Hour)
	view, err := f.svc.Renew(context.Background(), keyID)
	require.NoError(t, err)
	assert.WithinDuration(t, f.clock.Now().Add(90*24*time.Hour), view.ExpiresAt, time.Second)
	assert.Equal(t, domain.StatusActive, view.Status)
	assert.Equal(t, int64(1), f.countAudit(t, auditdomain.ActionKeyRenewed))

	_, err = f.svc.Revoke(context.Background(), issued.KeyID, "")
	require.NoError(t, err)
	_, err = f.svc.Renew(context.Background(), keyID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Renew(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidKeyID)
}

func TestVerifyReflectsCurrentMemberTier(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)

	changed, err := f.members.UpdateTier(context.Background(), f.db, mustID(t, issued.MemberID), access.TierInnerCircleElite, f.clock.Now())
	require.NoError(t, err)
	require.True(t, changed)

	result, err := f.svc.Verify(context.Background(), issued.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, access.TierInnerCircleElite, result.Tier)
}

func TestVerifyAcceptsLegacyKeys(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCirclePlus)

	legacy := "A1B2C3D4-e5f6-0718-ABCD"
	hash, err := f.svc.hasher.Hash(domain.NormalizeKey(legacy))
	require.NoError(t, err)
	key := &domain.AccessKey{
		ID:          f.svc.genID.Generate(),
		MemberID:    mustID(t, issued.MemberID),
		KeyHash:     hash,
		Fingerprint: domain.Fingerprint(legacy),
		KeySuffix:   domain.Suffix(legacy),
		Tier:        access.TierInnerCirclePlus,
		Status:      domain.StatusActive,
		IssuedAt:    f.clock.Now(),
		ExpiresAt:   f.clock.Now().Add(24 * time.Hour),
	}
	require.NoError(t, f.svc.repo.Insert(context.Background(), f.db, key))

	result, err := f.svc.Verify(context.Background(), "a1b2c3d4-E5F6-0718-abcd", domain.Origin{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, access.TierInnerCirclePlus, result.Tier)
}

func TestVerifyRateLimit(t *testing.T) {
	f := newFixture(t, withLimiter(stubLimiter{allowed: false}))
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)

	result, err := f.svc.Verify(context.Background(), issued.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonRateLimited, result.Reason)
	assert.Zero(t, f.storedKey(t, issued.KeyID).UsageCount)

	failing := newFixture(t, withLimiter(stubLimiter{err: errors.New("redis down")}))
	issued = failing.issue(t, "reader@example.com", access.TierInnerCircle)
	result, err = failing.svc.Verify(context.Background(), issued.RawKey, domain.Origin{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, result.Valid)
}

func TestVerifyStoreTimeoutFailsClosed(t *testing.T) {
	f := newFixture(t,
		withRepo(func(r domain.Repository) domain.Repository { return blockingRepo{Repository: r} }),
		withSettings(func(c *config.InnerCircleConfig) { c.StoreTimeout = 50 * time.Millisecond }),
	)
	raw, err := domain.GenerateKey()
	require.NoError(t, err)

	started := time.Now()
	result, err := f.svc.Verify(context.Background(), raw, domain.Origin{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, result.Valid)
	assert.Empty(t, result.Tier)
	assert.Less(t, time.Since(started), 2*time.Second)

	// the failure is still audited, anonymously
	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionKeyVerificationFailed).First(&entry).Error)
	assert.Equal(t, "unavailable", entry.Metadata["reason"])
	assert.Equal(t, string(auditdomain.ActorTypeAnonymous), entry.ActorType)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "anon:"+domain.Fingerprint(raw)[:16], *entry.TargetID)
}

func TestVerifyCountsEveryOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := obsmetrics.New(obsmetrics.Config{ServiceName: "innercircle-test"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	f := newFixture(t,
		withMetrics(m),
		withRepo(func(r domain.Repository) domain.Repository { return blockingRepo{Repository: r} }),
		withSettings(func(c *config.InnerCircleConfig) { c.StoreTimeout = 20 * time.Millisecond }),
	)
	raw, err := domain.GenerateKey()
	require.NoError(t, err)

	ctx := context.Background()
	for _, input := range []string{"", "not-a-key", raw} {
		_, _ = f.svc.Verify(ctx, input, domain.Origin{})
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	outcomes := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, item := range scope.Metrics {
			if item.Name != "innercircle_key_verifications_total" {
				continue
			}
			sum, ok := item.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				outcome, _ := point.Attributes.Value("outcome")
				outcomes[outcome.AsString()] += point.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		domain.ReasonEmpty:         1,
		domain.ReasonInvalidFormat: 1,
		"unavailable":              1,
	}, outcomes)
}

func TestKeyOperationsSurviveAuditFailure(t *testing.T) {
	audit := &failingAudit{}
	f := newFixture(t, withAudit(audit))
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, domain.IssueRequest{Email: "reader@example.com", Tier: access.TierInnerCirclePlus})
	require.NoError(t, err)

	result, err := f.svc.Verify(ctx, issued.RawKey, domain.Origin{IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, access.TierInnerCirclePlus, result.Tier)

	revoked, err := f.svc.Revoke(ctx, issued.RawKey, "")
	require.NoError(t, err)
	assert.True(t, revoked)

	after, err := f.svc.Verify(ctx, issued.RawKey, domain.Origin{})
	require.NoError(t, err)
	assert.False(t, after.Valid)
	assert.Equal(t, domain.ReasonRevoked, after.Reason)

	assert.GreaterOrEqual(t, audit.attempts.Load(), int64(4))
	assert.Zero(t, f.countAudit(t, auditdomain.ActionKeyIssued))
}

func TestVerifySession(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "reader@example.com", access.TierInnerCircle)
	keyID := mustID(t, issued.KeyID)
	memberID := mustID(t, issued.MemberID)

	result, err := f.svc.VerifySession(context.Background(), keyID, memberID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, access.TierInnerCircle, result.Tier)
	assert.Zero(t, f.storedKey(t, issued.KeyID).UsageCount)

	result, err = f.svc.VerifySession(context.Background(), keyID, memberID+1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNotFound, result.Reason)

	_, err = f.svc.Revoke(context.Background(), issued.KeyID, "")
	require.NoError(t, err)
	result, err = f.svc.VerifySession(context.Background(), keyID, memberID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonRevoked, result.Reason)
}

func TestRevokeAllForMemberAndStats(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, "reader@example.com", access.TierInnerCircle)
	f.issue(t, "reader@example.com", access.TierInnerCircle)
	f.issue(t, "other@example.com", access.TierInnerCirclePlus)

	_, err := f.svc.Verify(context.Background(), first.RawKey, domain.Origin{})
	require.NoError(t, err)

	count, err := f.svc.RevokeAllForMember(context.Background(), mustID(t, first.MemberID), domain.RevokeReasonMemberSuspended)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = f.svc.RevokeAllForMember(context.Background(), mustID(t, first.MemberID), "")
	require.NoError(t, err)
	assert.Zero(t, count)

	views, err := f.svc.ListForMember(context.Background(), mustID(t, first.MemberID))
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, view := range views {
		assert.Equal(t, domain.StatusRevoked, view.Status)
	}

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalKeys)
	assert.Equal(t, int64(1), stats.ActiveKeys)
	assert.Equal(t, int64(2), stats.RevokedKeys)
	assert.Equal(t, int64(1), stats.ActiveByTier[access.TierInnerCirclePlus])
	assert.Equal(t, int64(1), stats.TotalVerifications)
}

func mustID(t *testing.T, raw string) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(raw)
	require.NoError(t, err)
	return id
}

func TestPurgeRemovesOnlyEndedKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	revoked := f.issue(t, "one@example.com", access.TierInnerCircle)
	shortLived, err := f.svc.Issue(ctx, domain.IssueRequest{Email: "two@example.com", Tier: access.TierInnerCircle, TTL: 24 * time.Hour})
	require.NoError(t, err)
	kept := f.issue(t, "three@example.com", access.TierInnerCirclePlus)

	ok, err := f.svc.Revoke(ctx, revoked.RawKey, "")
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(40 * 24 * time.Hour)

	_, err = f.svc.Purge(ctx, time.Time{})
	assert.Error(t, err)

	count, err := f.svc.Purge(ctx, f.clock.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(1), f.countAudit(t, auditdomain.ActionKeysPurged))

	var remaining []domain.AccessKey
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, mustID(t, kept.KeyID), remaining[0].ID)
	assert.NotEqual(t, shortLived.KeyID, kept.KeyID)

	count, err = f.svc.Purge(ctx, f.clock.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}
