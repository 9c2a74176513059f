package server

import (
	"strings"

	"github.com/abrahamoflondon/innercircle/internal/access"
	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/auditcontext"
	"github.com/abrahamoflondon/innercircle/internal/authorization"
	obscontext "github.com/abrahamoflondon/innercircle/internal/observability/context"
	"github.com/abrahamoflondon/innercircle/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderInnerCircleKey = "X-Inner-Circle-Key"
	HeaderAdminToken     = "X-Admin-Token"

	contextDecisionKey   = "access_decision"
	contextOutcomeKey    = logger.OutcomeKey
	contextAccessTierKey = logger.AccessTierKey
	contextOperatorKey   = "admin_operator"

	outcomeValid          = "valid"
	outcomeUnavailable    = "unavailable"
	outcomeInvalidSession = "invalid_session"
)

// ResolveCredential verifies the key or session cookie the request carries and
// stores the resulting decision. A presented key counts against the same
// per-address attempt limit as POST /verify, and the request is aborted when
// that limit refuses it. Otherwise any failure, including a store fault,
// resolves to an anonymous decision.
func (s *Server) ResolveCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		if presentedKey(c) != "" && !s.allowVerifyAttempt(c) {
			return
		}
		decision := s.resolveDecision(c)
		c.Set(contextDecisionKey, decision)
		c.Set(contextAccessTierKey, string(decision.Tier))
		s.obsMetrics.RecordAccessDecision(c.Request.Context(), string(decision.Tier), decision.Source)
		c.Next()
	}
}

func (s *Server) resolveDecision(c *gin.Context) access.Decision {
	ctx := c.Request.Context()

	if key := presentedKey(c); key != "" {
		result, err := s.accessKeySvc.Verify(ctx, key, originFrom(c))
		return s.decisionFor(c, result, err)
	}

	if s.sessions == nil {
		c.Set(contextOutcomeKey, access.ReasonAnonymous)
		return access.ResolveAccess(nil)
	}
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		c.Set(contextOutcomeKey, access.ReasonAnonymous)
		return access.ResolveAccess(nil)
	}
	sess, err := s.sessions.Parse(token)
	if err != nil {
		s.sessions.Clear(c)
		c.Set(contextOutcomeKey, outcomeInvalidSession)
		return access.Anonymous(access.ReasonAnonymous)
	}

	result, err := s.accessKeySvc.VerifySession(ctx, sess.KeyID, sess.MemberID)
	if err == nil && !result.Valid {
		s.sessions.Clear(c)
	}
	return s.decisionFor(c, result, err)
}

func (s *Server) decisionFor(c *gin.Context, result accesskeydomain.VerificationResult, err error) access.Decision {
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("access decision unavailable", zap.Error(err))
		c.Set(contextOutcomeKey, outcomeUnavailable)
		return access.Anonymous(access.ReasonUnavailable)
	}
	if !result.Valid {
		c.Set(contextOutcomeKey, result.Reason)
		return access.Anonymous(result.Reason)
	}

	c.Set(contextOutcomeKey, outcomeValid)
	c.Request = c.Request.WithContext(obscontext.WithMemberID(c.Request.Context(), result.MemberID))
	return access.ResolveAccess(s.subjectFor(result))
}

// subjectFor applies the staff list and tier overrides to a verified key.
func (s *Server) subjectFor(result accesskeydomain.VerificationResult) *access.Subject {
	subject := &access.Subject{
		MemberID: result.MemberID,
		Tier:     result.Tier,
	}
	if result.EmailHash == "" {
		return subject
	}
	subject.Staff = s.policy.IsStaff(result.EmailHash)
	if override, ok := s.policy.OverrideFor(result.EmailHash); ok {
		subject.Override = override
	}
	return subject
}

func decisionFromContext(c *gin.Context) access.Decision {
	if value, ok := c.Get(contextDecisionKey); ok {
		if decision, ok := value.(access.Decision); ok {
			return decision
		}
	}
	return access.ResolveAccess(nil)
}

// presentedKey reads a bearer token first, then the dedicated header.
func presentedKey(c *gin.Context) string {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(c.GetHeader(HeaderInnerCircleKey))
}

func originFrom(c *gin.Context) accesskeydomain.Origin {
	return accesskeydomain.Origin{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// AdminRequired authenticates X-Admin-Token and stamps the operator on the
// audit context.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderAdminToken))
		if token == "" || s.authzSvc == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		operator, ok := s.authzSvc.Authenticate(token)
		if !ok {
			AbortWithError(c, authorization.ErrInvalidAdminToken)
			return
		}

		ctx := auditcontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeAdmin), operator.Name)
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeAdmin), operator.Name)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOperatorKey, operator)
		c.Next()
	}
}

func operatorFromContext(c *gin.Context) (authorization.Operator, bool) {
	value, ok := c.Get(contextOperatorKey)
	if !ok {
		return authorization.Operator{}, false
	}
	operator, ok := value.(authorization.Operator)
	return operator, ok
}
