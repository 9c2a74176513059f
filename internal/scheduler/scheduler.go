package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/auditcontext"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	AuditSvc     auditdomain.Service
	AccessKeySvc accesskeydomain.Service
	Locker       *ratelimit.Locker `optional:"true"`
	Config       Config            `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	auditSvc     auditdomain.Service
	accessKeySvc accesskeydomain.Service
	locker       *ratelimit.Locker

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.AuditSvc == nil || p.AccessKeySvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          cfg,
		genID:        p.GenID,
		clock:        p.Clock,
		auditSvc:     p.AuditSvc,
		accessKeySvc: p.AccessKeySvc,
		locker:       p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	schedMetrics := obsmetrics.Scheduler()

	release, acquired, err := s.acquireJobLock(parent, name)
	if err != nil {
		schedMetrics.IncJobError(name, err)
		s.logger(parent).Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	if !acquired {
		schedMetrics.IncJobSkipped(name)
		s.logger(parent).Debug("job held by another instance", zap.String("job", name))
		return nil
	}
	defer release()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err = fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.fail()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: the next run picks up where this one stopped.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobAuditRetention, s.AuditRetentionJob},
		{JobKeyCleanup, s.KeyCleanupJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}

	return err
}

// Start registers RunOnce on the configured cron schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	var entryID cron.EntryID
	entryID, err := c.AddFunc(s.cfg.Schedule, func() {
		if prev := c.Entry(entryID).Prev; !prev.IsZero() {
			if lag := time.Since(prev); lag > 0 {
				obsmetrics.Scheduler().ObserveRunLoopLag(lag)
			}
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.log.Info("scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Time("next_run", c.Entry(entryID).Next),
	)
	return nil
}

// Stop cancels in-flight jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// AuditRetentionJob deletes audit events older than the retention window.
func (s *Scheduler) AuditRetentionJob(ctx context.Context) error {
	return s.purge(ctx, JobAuditRetention, "audit_logs", s.cfg.AuditRetentionDays, s.auditSvc.Prune)
}

// KeyCleanupJob deletes revoked and expired keys that ended more than
// KeyPurgeDays ago.
func (s *Scheduler) KeyCleanupJob(ctx context.Context) error {
	return s.purge(ctx, JobKeyCleanup, "access_keys", s.cfg.KeyPurgeDays, s.accessKeySvc.Purge)
}

func (s *Scheduler) purge(
	ctx context.Context,
	job, table string,
	days int,
	fn func(ctx context.Context, before time.Time) (int64, error),
) error {
	ctx, run, owner := s.ensureJobRun(ctx, job)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	run.cutoff = s.clock.Now().UTC().AddDate(0, 0, -days)
	n, err := fn(ctx, run.cutoff)
	// batches that completed before a failure still count
	run.addPurged(n)
	obsmetrics.Scheduler().AddBatchProcessed(job, table, n)
	if err != nil {
		s.logJobError(ctx, run, err)
		return err
	}
	return nil
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
