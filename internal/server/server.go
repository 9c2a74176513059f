package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/authorization"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	"github.com/abrahamoflondon/innercircle/internal/config"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/abrahamoflondon/innercircle/internal/observability"
	obsmiddleware "github.com/abrahamoflondon/innercircle/internal/observability/logger"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	obstracing "github.com/abrahamoflondon/innercircle/internal/observability/tracing"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"github.com/abrahamoflondon/innercircle/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultHTTPAddr = ":8080"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	session.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:             obsCfg.Debug(),
		ErrorClassifier:   classifyErrorForLog,
		QuietRoutes:       []string{"/health", "/metrics"},
		QuietClientErrors: []string{"/api/access/verify"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	clock        clock.Clock
	accessKeySvc accesskeydomain.Service
	memberSvc    memberdomain.Service
	auditSvc     auditdomain.Service
	authzSvc     authorization.Service
	sessions     *session.Manager
	policy       *config.AccessPolicyHolder
	obsMetrics   *obsmetrics.Metrics
	attempts     attemptLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Clock        clock.Clock
	AccessKeySvc accesskeydomain.Service
	MemberSvc    memberdomain.Service
	AuditSvc     auditdomain.Service
	AuthzSvc     authorization.Service
	Sessions     *session.Manager
	Policy       *config.AccessPolicyHolder `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics        `optional:"true"`
	Attempts     *ratelimit.AttemptLimiter  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		clock:        p.Clock,
		accessKeySvc: p.AccessKeySvc,
		memberSvc:    p.MemberSvc,
		auditSvc:     p.AuditSvc,
		authzSvc:     p.AuthzSvc,
		sessions:     p.Sessions,
		policy:       p.Policy,
		obsMetrics:   p.ObsMetrics,
	}
	if p.Attempts != nil {
		svc.attempts = p.Attempts
	}
	if svc.clock == nil {
		svc.clock = clock.NewSystemClock()
	}

	svc.registerAccessRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAccessRoutes() {
	api := s.engine.Group("/api/access")

	api.POST("/verify", s.VerifyAttemptRateLimit(), s.VerifyKey)
	api.POST("/logout", s.Logout)
	api.GET("/decision", s.ResolveCredential(), s.GetDecision)
	api.POST("/documents/check", s.ResolveCredential(), s.CheckDocument)
	api.POST("/documents/filter", s.ResolveCredential(), s.FilterDocuments)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminRequired())

	// -------- Keys --------
	admin.POST("/keys", s.authorizeAdminAction(authorization.ObjectAccessKey, authorization.ActionAccessKeyIssue), s.IssueKey)
	admin.POST("/keys/revoke", s.authorizeAdminAction(authorization.ObjectAccessKey, authorization.ActionAccessKeyRevoke), s.RevokeKey)
	admin.POST("/keys/:id/renew", s.authorizeAdminAction(authorization.ObjectAccessKey, authorization.ActionAccessKeyRenew), s.RenewKey)

	// -------- Members --------
	admin.GET("/members/:id/keys", s.authorizeAdminAction(authorization.ObjectAccessKey, authorization.ActionAccessKeyView), s.ListMemberKeys)
	admin.POST("/members/:id/suspend", s.authorizeAdminAction(authorization.ObjectMember, authorization.ActionMemberSuspend), s.SuspendMember)
	admin.POST("/members/:id/reinstate", s.authorizeAdminAction(authorization.ObjectMember, authorization.ActionMemberReinstate), s.ReinstateMember)
	admin.POST("/members/:id/tier", s.authorizeAdminAction(authorization.ObjectMember, authorization.ActionMemberSetTier), s.SetMemberTier)

	admin.GET("/audit-logs", s.authorizeAdminAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	admin.GET("/stats", s.authorizeAdminAction(authorization.ObjectStats, authorization.ActionStatsView), s.GetStats)
}
