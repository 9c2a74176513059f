package service

import (
	"context"
	"strings"

	"github.com/abrahamoflondon/innercircle/internal/access"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	"github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Audit auditdomain.Service
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	audit auditdomain.Service
	clock clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("member.service"),
		repo:  p.Repo,
		audit: p.Audit,
		clock: clk,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Member, error) {
	if id == 0 {
		return domain.Member{}, domain.ErrInvalidMember
	}
	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	return *member, nil
}

// Suspend is idempotent: suspending a suspended member returns it unchanged
// and writes no audit event.
func (s *Service) Suspend(ctx context.Context, id snowflake.ID, reason string) (domain.Member, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Member{}, domain.ErrInvalidReason
	}
	return s.transition(ctx, id, domain.StatusActive, domain.StatusSuspended, &reason, auditdomain.ActionMemberSuspended)
}

func (s *Service) Reinstate(ctx context.Context, id snowflake.ID) (domain.Member, error) {
	return s.transition(ctx, id, domain.StatusSuspended, domain.StatusActive, nil, auditdomain.ActionMemberReinstated)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, from, to domain.Status, reason *string, action string) (domain.Member, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return domain.Member{}, err
	}

	changed, err := s.repo.UpdateStatus(ctx, s.db, id, from, to, reason, s.clock.Now())
	if err != nil {
		return domain.Member{}, err
	}

	member, err := s.Get(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	if !changed {
		return member, nil
	}

	metadata := map[string]any{"from": string(from), "to": string(to)}
	if reason != nil {
		metadata["reason"] = *reason
	}
	s.record(ctx, auditdomain.Event{
		Action:     action,
		TargetType: auditdomain.TargetTypeMember,
		TargetID:   id.String(),
		Metadata:   metadata,
	})
	s.log.Info("member status changed",
		zap.String("member_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return member, nil
}

func (s *Service) SetTier(ctx context.Context, id snowflake.ID, tier access.Tier) (domain.Member, error) {
	if !tier.Valid() {
		return domain.Member{}, access.ErrInvalidTier
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}

	changed, err := s.repo.UpdateTier(ctx, s.db, id, tier, s.clock.Now())
	if err != nil {
		return domain.Member{}, err
	}
	if !changed {
		return current, nil
	}

	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionMemberTierChanged,
		TargetType: auditdomain.TargetTypeMember,
		TargetID:   id.String(),
		Metadata:   map[string]any{"from": string(current.Tier), "to": string(tier)},
	})
	return s.Get(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx, s.db)
	if err != nil {
		return domain.Stats{}, err
	}
	byTier, err := s.repo.CountByTier(ctx, s.db)
	if err != nil {
		return domain.Stats{}, err
	}

	var total int64
	for _, count := range byStatus {
		total += count
	}
	return domain.Stats{Total: total, ByStatus: byStatus, ByTier: byTier}, nil
}

func (s *Service) record(ctx context.Context, event auditdomain.Event) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, event)
}
