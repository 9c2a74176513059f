package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/audit/masking"
	"github.com/abrahamoflondon/innercircle/internal/cache"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	"github.com/abrahamoflondon/innercircle/internal/config"
	"github.com/abrahamoflondon/innercircle/internal/keyhash"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultKeyTTL       = 90 * 24 * time.Hour
	defaultStoreTimeout = 2 * time.Second
	minKeyTTL           = 24 * time.Hour
	maxKeyTTL           = 365 * 24 * time.Hour

	outcomeValid       = "valid"
	outcomeUnavailable = "unavailable"
	outcomeOther       = "other"

	rateLimitEndpoint = "key_unlock"
)

var validate = validator.New()

// UnlockLimiter meters successful unlocks per key fingerprint.
type UnlockLimiter interface {
	Allow(ctx context.Context, fingerprint string) (bool, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	MemberRepo memberdomain.Repository
	Audit      auditdomain.Service
	Hasher     *keyhash.Hasher
	Config     config.Config
	Clock      clock.Clock            `optional:"true"`
	Metrics    *obsmetrics.Metrics    `optional:"true"`
	Limiter    UnlockLimiter          `optional:"true"`
	Cache      cache.VerifiedKeyCache `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	memberRepo   memberdomain.Repository
	audit        auditdomain.Service
	hasher       *keyhash.Hasher
	clock        clock.Clock
	metrics      *obsmetrics.Metrics
	limiter      UnlockLimiter
	cache        cache.VerifiedKeyCache
	keyTTL       time.Duration
	maxKeys      int
	storeTimeout time.Duration
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	hasher := p.Hasher
	if hasher == nil {
		hasher = keyhash.NewDefault()
	}

	settings := p.Config.InnerCircle
	keyTTL := settings.KeyTTL
	if keyTTL <= 0 {
		keyTTL = defaultKeyTTL
	}
	storeTimeout := settings.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	return &Service{
		db:           p.DB,
		log:          p.Log.Named("accesskey.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		memberRepo:   p.MemberRepo,
		audit:        p.Audit,
		hasher:       hasher,
		clock:        clk,
		metrics:      p.Metrics,
		limiter:      p.Limiter,
		cache:        p.Cache,
		keyTTL:       keyTTL,
		maxKeys:      settings.MaxKeysPerMember,
		storeTimeout: storeTimeout,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (domain.IssueResult, error) {
	if !req.Tier.Valid() {
		return domain.IssueResult{}, domain.ErrInvalidTier
	}

	ttl := s.keyTTL
	if req.TTL != 0 {
		if req.TTL < minKeyTTL || req.TTL > maxKeyTTL {
			return domain.IssueResult{}, domain.ErrInvalidTTL
		}
		ttl = req.TTL
	}

	var emailHash string
	if req.MemberID == 0 {
		email := strings.TrimSpace(req.Email)
		if err := validate.Var(email, "required,email,max=320"); err != nil {
			return domain.IssueResult{}, memberdomain.ErrInvalidEmail
		}
		emailHash = access.HashEmail(email)
	}

	rawKey, err := domain.GenerateKey()
	if err != nil {
		return domain.IssueResult{}, err
	}
	keyHash, err := s.hasher.Hash(rawKey)
	if err != nil {
		return domain.IssueResult{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := s.clock.Now()
	key := &domain.AccessKey{
		ID:          s.genID.Generate(),
		KeyHash:     keyHash,
		Fingerprint: domain.Fingerprint(rawKey),
		KeySuffix:   domain.Suffix(rawKey),
		Tier:        req.Tier,
		Status:      domain.StatusActive,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}

	var member *memberdomain.Member
	err = s.db.WithContext(storeCtx).Transaction(func(tx *gorm.DB) error {
		resolved, err := s.resolveMember(storeCtx, tx, req, emailHash, now)
		if err != nil {
			return err
		}
		if !resolved.Active() {
			return memberdomain.ErrSuspended
		}
		key.MemberID = resolved.ID

		if s.maxKeys > 0 {
			active, err := s.repo.CountActiveByMember(storeCtx, tx, resolved.ID, now)
			if err != nil {
				return storeFailure(err)
			}
			if active >= int64(s.maxKeys) {
				return domain.ErrKeyLimitReached
			}
		}
		// Issuing only ever raises the member tier; lowering goes through SetTier.
		if raised := access.Highest(resolved.Tier, req.Tier); raised != resolved.Tier {
			if _, err := s.memberRepo.UpdateTier(storeCtx, tx, resolved.ID, raised, now); err != nil {
				return storeFailure(err)
			}
			resolved.Tier = raised
		}
		if err := s.repo.Insert(storeCtx, tx, key); err != nil {
			return storeFailure(err)
		}
		member = resolved
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrKeyLimitReached),
			errors.Is(err, domain.ErrStoreUnavailable),
			errors.Is(err, memberdomain.ErrSuspended),
			errors.Is(err, memberdomain.ErrNotFound):
			return domain.IssueResult{}, err
		}
		return domain.IssueResult{}, storeFailure(err)
	}

	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionKeyIssued,
		TargetType: auditdomain.TargetTypeAccessKey,
		TargetID:   key.ID.String(),
		Metadata: map[string]any{
			"member_id":   member.ID.String(),
			"tier":        string(key.Tier),
			"member_tier": string(member.Tier),
			"key_suffix":  key.KeySuffix,
			"expires_at":  key.ExpiresAt.Format(time.RFC3339),
		},
	})
	s.metrics.RecordKeyIssued(ctx, string(key.Tier))
	s.log.Info("access key issued",
		zap.String("key_id", key.ID.String()),
		zap.String("member_id", member.ID.String()),
		zap.String("tier", string(key.Tier)),
		zap.Time("expires_at", key.ExpiresAt),
	)

	return domain.IssueResult{
		RawKey:    rawKey,
		KeyID:     key.ID.String(),
		KeySuffix: key.KeySuffix,
		MemberID:  member.ID.String(),
		Tier:      key.Tier,
		ExpiresAt: key.ExpiresAt,
	}, nil
}

// resolveMember loads the member by id, or upserts it by email hash. It runs
// inside the issue transaction so a failed key insert leaves no member behind.
func (s *Service) resolveMember(ctx context.Context, tx *gorm.DB, req domain.IssueRequest, emailHash string, now time.Time) (*memberdomain.Member, error) {
	if req.MemberID != 0 {
		member, err := s.memberRepo.FindByID(ctx, tx, req.MemberID)
		if err != nil {
			return nil, storeFailure(err)
		}
		if member == nil {
			return nil, memberdomain.ErrNotFound
		}
		return member, nil
	}

	member, err := s.memberRepo.FindByEmailHash(ctx, tx, emailHash)
	if err != nil {
		return nil, storeFailure(err)
	}
	if member != nil {
		return member, nil
	}

	member = &memberdomain.Member{
		ID:          s.genID.Generate(),
		EmailHash:   emailHash,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Tier:        req.Tier,
		Status:      memberdomain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// savepoint, so a duplicate does not abort the outer transaction
	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.memberRepo.Insert(ctx, sp, member)
	})
	if err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, storeFailure(err)
		}
		// lost a concurrent insert for the same email
		member, err = s.memberRepo.FindByEmailHash(ctx, tx, emailHash)
		if err != nil {
			return nil, storeFailure(err)
		}
		if member == nil {
			return nil, memberdomain.ErrNotFound
		}
	}
	return member, nil
}

// Verify never returns an error for a bad key; only store faults are errors,
// and callers must treat them as a denial.
func (s *Service) Verify(ctx context.Context, rawKey string, origin domain.Origin) (domain.VerificationResult, error) {
	started := time.Now()

	key := domain.NormalizeKey(rawKey)
	if key == "" {
		s.metrics.RecordVerification(ctx, domain.ReasonEmpty, time.Since(started))
		return failed(domain.ReasonEmpty), nil
	}
	if !domain.ValidFormat(key) {
		s.metrics.RecordVerification(ctx, domain.ReasonInvalidFormat, time.Since(started))
		return failed(domain.ReasonInvalidFormat), nil
	}

	fingerprint := domain.Fingerprint(key)
	result, err := s.verifyStored(ctx, key, fingerprint, origin)
	if err != nil {
		s.metrics.RecordVerification(ctx, outcomeUnavailable, time.Since(started))
		s.log.Error("key verification unavailable",
			zap.String("subject", masking.AnonymousSubject(fingerprint)),
			zap.Error(err),
		)
		// the caller's context is usually what expired
		s.recordVerification(context.WithoutCancel(ctx), failed(outcomeUnavailable), fingerprint)
		return failed(outcomeUnavailable), err
	}

	outcome := outcomeValid
	if !result.Valid {
		outcome = result.Reason
	}
	s.metrics.RecordVerification(ctx, outcome, time.Since(started))
	s.recordVerification(ctx, result, fingerprint)
	return result, nil
}

func (s *Service) verifyStored(ctx context.Context, key, fingerprint string, origin domain.Origin) (domain.VerificationResult, error) {
	record, err := s.findByFingerprint(ctx, fingerprint)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	if record == nil || !s.hashMatches(key, fingerprint, record.KeyHash) {
		return failed(domain.ReasonNotFound), nil
	}

	now := s.clock.Now()
	if reason := classify(record, now); reason != "" {
		return rejected(record, reason), nil
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, fingerprint)
		if err != nil {
			s.metrics.RecordRateLimitDenied(ctx, rateLimitEndpoint, "limiter_error")
			return domain.VerificationResult{}, storeFailure(err)
		}
		if !allowed {
			s.metrics.RecordRateLimitDenied(ctx, rateLimitEndpoint, domain.ReasonRateLimited)
			return rejected(record, domain.ReasonRateLimited), nil
		}
		s.metrics.RecordRateLimitAllowed(ctx, rateLimitEndpoint)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	marked, err := s.repo.MarkUsed(storeCtx, s.db, record.ID, domain.UsageMark{
		At:        now,
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	if err != nil {
		return domain.VerificationResult{}, storeFailure(err)
	}
	if !marked {
		// revoked, expired or suspended between the read and the update
		current, err := s.repo.FindByID(storeCtx, s.db, record.ID)
		if err != nil {
			return domain.VerificationResult{}, storeFailure(err)
		}
		reason := domain.ReasonNotFound
		if current != nil {
			if classified := classify(current, now); classified != "" {
				reason = classified
			}
			return rejected(current, reason), nil
		}
		return failed(reason), nil
	}

	if err := s.memberRepo.TouchLastSeen(storeCtx, s.db, record.MemberID, now); err != nil {
		s.log.Warn("failed to touch member last seen",
			zap.String("member_id", record.MemberID.String()),
			zap.Error(err),
		)
	}

	return granted(record), nil
}

// VerifySession re-checks a key id carried by a session cookie. It skips the
// hash comparison and does not count as an unlock.
func (s *Service) VerifySession(ctx context.Context, keyID, memberID snowflake.ID) (domain.VerificationResult, error) {
	if keyID == 0 || memberID == 0 {
		return failed(domain.ReasonNotFound), nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.repo.FindByID(storeCtx, s.db, keyID)
	if err != nil {
		return failed(outcomeUnavailable), storeFailure(err)
	}
	if record == nil || record.MemberID != memberID {
		return failed(domain.ReasonNotFound), nil
	}
	if reason := classify(record, s.clock.Now()); reason != "" {
		return rejected(record, reason), nil
	}
	return granted(record), nil
}

func (s *Service) Revoke(ctx context.Context, rawKeyOrHash string, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.RevokeReasonAdmin
	}

	record, err := s.findByReference(ctx, strings.TrimSpace(rawKeyOrHash))
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	revoked, err := s.repo.Revoke(storeCtx, s.db, record.ID, reason, s.clock.Now())
	if err != nil {
		return false, storeFailure(err)
	}
	if s.cache != nil {
		s.cache.Forget(record.Fingerprint)
	}
	if !revoked {
		return false, nil
	}

	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionKeyRevoked,
		TargetType: auditdomain.TargetTypeAccessKey,
		TargetID:   record.ID.String(),
		Metadata: map[string]any{
			"member_id":  record.MemberID.String(),
			"key_suffix": record.KeySuffix,
			"reason":     reason,
		},
	})
	s.metrics.RecordKeysRevoked(ctx, revokeReasonLabel(reason), 1)
	s.log.Info("access key revoked",
		zap.String("key_id", record.ID.String()),
		zap.String("member_id", record.MemberID.String()),
	)
	return true, nil
}

func (s *Service) findByReference(ctx context.Context, ref string) (*domain.KeyRecord, error) {
	switch {
	case ref == "":
		return nil, domain.ErrInvalidReference
	case domain.IsFingerprint(strings.ToLower(ref)):
		return s.findByFingerprint(ctx, strings.ToLower(ref))
	case domain.ValidFormat(domain.NormalizeKey(ref)):
		return s.findByFingerprint(ctx, domain.Fingerprint(ref))
	}

	id, err := snowflake.ParseString(ref)
	if err != nil || id <= 0 {
		return nil, domain.ErrInvalidReference
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.repo.FindByID(storeCtx, s.db, id)
	if err != nil {
		return nil, storeFailure(err)
	}
	return record, nil
}

func (s *Service) RevokeAllForMember(ctx context.Context, memberID snowflake.ID, reason string) (int64, error) {
	if memberID == 0 {
		return 0, memberdomain.ErrInvalidMember
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.RevokeReasonAdmin
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	count, err := s.repo.RevokeAllForMember(storeCtx, s.db, memberID, reason, s.clock.Now())
	if err != nil {
		return 0, storeFailure(err)
	}
	if count == 0 {
		return 0, nil
	}

	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionKeyRevoked,
		TargetType: auditdomain.TargetTypeMember,
		TargetID:   memberID.String(),
		Metadata:   map[string]any{"reason": reason, "count": count},
	})
	s.metrics.RecordKeysRevoked(ctx, revokeReasonLabel(reason), count)
	s.log.Info("member access keys revoked",
		zap.String("member_id", memberID.String()),
		zap.Int64("count", count),
	)
	return count, nil
}

// Renew pushes an active key's expiry one full lifetime past now. Revoked
// and expired keys are terminal and report ErrNotFound.
func (s *Service) Renew(ctx context.Context, keyID snowflake.ID) (domain.KeyView, error) {
	if keyID == 0 {
		return domain.KeyView{}, domain.ErrInvalidKeyID
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := s.clock.Now()
	expiresAt := now.Add(s.keyTTL)
	renewed, err := s.repo.Renew(storeCtx, s.db, keyID, expiresAt, now)
	if err != nil {
		return domain.KeyView{}, storeFailure(err)
	}
	if !renewed {
		return domain.KeyView{}, domain.ErrNotFound
	}

	record, err := s.repo.FindByID(storeCtx, s.db, keyID)
	if err != nil {
		return domain.KeyView{}, storeFailure(err)
	}
	if record == nil {
		return domain.KeyView{}, domain.ErrNotFound
	}

	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionKeyRenewed,
		TargetType: auditdomain.TargetTypeAccessKey,
		TargetID:   keyID.String(),
		Metadata: map[string]any{
			"member_id":  record.MemberID.String(),
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})
	return toView(record.AccessKey, now), nil
}

func (s *Service) ListForMember(ctx context.Context, memberID snowflake.ID) ([]domain.KeyView, error) {
	if memberID == 0 {
		return nil, memberdomain.ErrInvalidMember
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	keys, err := s.repo.ListByMember(storeCtx, s.db, memberID)
	if err != nil {
		return nil, storeFailure(err)
	}

	now := s.clock.Now()
	views := make([]domain.KeyView, 0, len(keys))
	for _, key := range keys {
		views = append(views, toView(key, now))
	}
	return views, nil
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	stats, err := s.repo.Stats(storeCtx, s.db, s.clock.Now())
	if err != nil {
		return domain.Stats{}, storeFailure(err)
	}
	return stats, nil
}

func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, errors.New("purge cutoff is required")
	}

	// Batched deletes run under the job's context; a single store timeout
	// would cut a large backlog short.
	count, err := s.repo.PurgeInactive(ctx, s.db, before.UTC())
	if err != nil {
		s.log.Warn("access key purge stopped",
			zap.Int64("purged", count),
			zap.Error(err),
		)
		return count, storeFailure(err)
	}
	if count == 0 {
		return 0, nil
	}

	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionKeysPurged,
		TargetType: auditdomain.TargetTypeAccessKey,
		Metadata: map[string]any{
			"count":  count,
			"before": before.UTC().Format(time.RFC3339),
		},
	})
	s.log.Info("inactive access keys purged", zap.Int64("count", count))
	return count, nil
}

func (s *Service) findByFingerprint(ctx context.Context, fingerprint string) (*domain.KeyRecord, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.repo.FindByFingerprint(storeCtx, s.db, fingerprint)
	if err != nil {
		return nil, storeFailure(err)
	}
	return record, nil
}

func (s *Service) hashMatches(key, fingerprint, keyHash string) bool {
	if s.cache != nil && s.cache.Verified(fingerprint, keyHash) {
		return true
	}
	if !s.hasher.Verify(key, keyHash) {
		return false
	}
	if s.cache != nil {
		s.cache.Remember(fingerprint, keyHash)
	}
	return true
}

func (s *Service) recordVerification(ctx context.Context, result domain.VerificationResult, fingerprint string) {
	event := auditdomain.Event{
		ActorType:  auditdomain.ActorTypeMember,
		ActorID:    result.MemberID,
		Action:     auditdomain.ActionKeyVerified,
		TargetType: auditdomain.TargetTypeMember,
		TargetID:   result.MemberID,
		Outcome:    auditdomain.OutcomeSuccess,
		Metadata: map[string]any{
			"key_id":     result.KeyID,
			"key_suffix": result.KeySuffix,
			"tier":       string(result.Tier),
		},
	}
	if !result.Valid {
		event.Action = auditdomain.ActionKeyVerificationFailed
		event.Outcome = auditdomain.OutcomeFailure
		event.Metadata = map[string]any{"reason": result.Reason}
		if result.KeySuffix != "" {
			event.Metadata["key_suffix"] = result.KeySuffix
		}
		if result.MemberID == "" {
			subject := masking.AnonymousSubject(fingerprint)
			event.ActorType = auditdomain.ActorTypeAnonymous
			event.ActorID = subject
			event.TargetType = auditdomain.TargetTypeAnonymous
			event.TargetID = subject
		}
	}
	s.record(ctx, event)
}

func (s *Service) record(ctx context.Context, event auditdomain.Event) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, event)
}

// classify returns the rejection reason for a stored key, or "" when the key
// is usable.
func classify(record *domain.KeyRecord, now time.Time) string {
	switch {
	case record.EffectiveStatus(now) == domain.StatusRevoked:
		return domain.ReasonRevoked
	case record.EffectiveStatus(now) == domain.StatusExpired:
		return domain.ReasonExpired
	case record.MemberStatus != memberdomain.StatusActive:
		return domain.ReasonSuspended
	default:
		return ""
	}
}

func failed(reason string) domain.VerificationResult {
	return domain.VerificationResult{Valid: false, Reason: reason}
}

func rejected(record *domain.KeyRecord, reason string) domain.VerificationResult {
	return domain.VerificationResult{
		Valid:     false,
		MemberID:  record.MemberID.String(),
		KeySuffix: record.KeySuffix,
		Reason:    reason,
	}
}

func granted(record *domain.KeyRecord) domain.VerificationResult {
	tier := record.MemberTier
	if !tier.Valid() {
		tier = record.Tier
	}
	expiresAt := record.ExpiresAt
	return domain.VerificationResult{
		Valid:     true,
		MemberID:  record.MemberID.String(),
		KeyID:     record.ID.String(),
		Tier:      tier,
		KeySuffix: record.KeySuffix,
		ExpiresAt: &expiresAt,
		EmailHash: record.MemberEmailHash,
	}
}

func toView(key domain.AccessKey, now time.Time) domain.KeyView {
	return domain.KeyView{
		ID:         key.ID.String(),
		KeySuffix:  key.KeySuffix,
		Tier:       key.Tier,
		Status:     key.EffectiveStatus(now),
		IssuedAt:   key.IssuedAt,
		ExpiresAt:  key.ExpiresAt,
		RevokedAt:  key.RevokedAt,
		Reason:     key.RevokedReason,
		UsageCount: key.UsageCount,
		LastUsedAt: key.LastUsedAt,
	}
}

func revokeReasonLabel(reason string) string {
	switch reason {
	case domain.RevokeReasonAdmin, domain.RevokeReasonMemberSuspended:
		return reason
	default:
		return outcomeOther
	}
}

func storeFailure(err error) error {
	if err == nil || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
