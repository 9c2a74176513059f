package authorization

import (
	"context"
	_ "embed"
	"strings"

	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/config"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

const (
	ObjectAccessKey = "access_key"
	ObjectMember    = "member"
	ObjectAuditLog  = "audit_log"
	ObjectStats     = "stats"
)

const (
	ActionAccessKeyIssue  = "access_key.issue"
	ActionAccessKeyRevoke = "access_key.revoke"
	ActionAccessKeyRenew  = "access_key.renew"
	ActionAccessKeyView   = "access_key.view"

	ActionMemberSuspend   = "member.suspend"
	ActionMemberReinstate = "member.reinstate"
	ActionMemberSetTier   = "member.set_tier"
	ActionMemberView      = "member.view"

	ActionAuditLogView = "audit_log.view"
	ActionStatsView    = "stats.view"
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
	tokens   []adminToken
}

// NewEnforcer persists policy through the gorm adapter. A nil db keeps the
// policy in memory.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if db == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	} else {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, err
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	enforcer.EnableAutoBuildRoleLinks(true)

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) (Service, error) {
	tokens, err := ParseAdminTokens(p.Config.InnerCircle.AdminTokens)
	if err != nil {
		return nil, err
	}
	log := p.Log.Named("authorization.service")
	if len(tokens) == 0 {
		log.Warn("no admin tokens configured, admin endpoints are unreachable")
	}
	return &ServiceImpl{
		log:      log,
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
		tokens:   tokens,
	}, nil
}

func (s *ServiceImpl) Authenticate(token string) (Operator, bool) {
	return matchAdminToken(s.tokens, token)
}

func (s *ServiceImpl) Authorize(ctx context.Context, operator Operator, object string, action string) error {
	if strings.TrimSpace(operator.Name) == "" || strings.TrimSpace(operator.Role) == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := operator.Subject()
	if err := s.ensureGrouping(subject, "role:"+operator.Role); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, operator, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per operator, so a role change
// in config takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, operator Operator, object string, action string) {
	s.log.Warn("admin action denied",
		zap.String("operator", operator.Name),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		ActorType:  auditdomain.ActorTypeAdmin,
		ActorID:    operator.Name,
		Action:     auditdomain.ActionAdminAccessDenied,
		TargetType: object,
		Outcome:    auditdomain.OutcomeFailure,
		Metadata: map[string]any{
			"action": action,
			"role":   operator.Role,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{"role:viewer", ObjectAccessKey, ActionAccessKeyView},
		{"role:viewer", ObjectMember, ActionMemberView},
		{"role:viewer", ObjectStats, ActionStatsView},

		// Admin permissions
		{"role:admin", ObjectAccessKey, ActionAccessKeyView},
		{"role:admin", ObjectAccessKey, ActionAccessKeyIssue},
		{"role:admin", ObjectAccessKey, ActionAccessKeyRevoke},
		{"role:admin", ObjectAccessKey, ActionAccessKeyRenew},
		{"role:admin", ObjectMember, ActionMemberView},
		{"role:admin", ObjectMember, ActionMemberSuspend},
		{"role:admin", ObjectMember, ActionMemberReinstate},
		{"role:admin", ObjectStats, ActionStatsView},

		// Owner permissions
		{"role:owner", ObjectAccessKey, ActionAccessKeyView},
		{"role:owner", ObjectAccessKey, ActionAccessKeyIssue},
		{"role:owner", ObjectAccessKey, ActionAccessKeyRevoke},
		{"role:owner", ObjectAccessKey, ActionAccessKeyRenew},
		{"role:owner", ObjectMember, ActionMemberView},
		{"role:owner", ObjectMember, ActionMemberSuspend},
		{"role:owner", ObjectMember, ActionMemberReinstate},
		{"role:owner", ObjectMember, ActionMemberSetTier},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
		{"role:owner", ObjectStats, ActionStatsView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
