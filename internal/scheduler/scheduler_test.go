package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	auditrepository "github.com/abrahamoflondon/innercircle/internal/audit/repository"
	auditservice "github.com/abrahamoflondon/innercircle/internal/audit/service"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubAccessKeys struct {
	accesskeydomain.Service
	purgedBefore []time.Time
	err          error
}

func (s *stubAccessKeys) Purge(_ context.Context, before time.Time) (int64, error) {
	s.purgedBefore = append(s.purgedBefore, before)
	if s.err != nil {
		return 0, s.err
	}
	return 3, nil
}

type fixture struct {
	sched *Scheduler
	db    *gorm.DB
	clock *clock.FakeClock
	audit auditdomain.Service
	keys  *stubAccessKeys
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSchedulerMetricsForTest()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

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
	keys := &stubAccessKeys{}

	sched, err := New(Params{
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		AuditSvc:     audit,
		AccessKeySvc: keys,
		Config:       cfg,
	})
	require.NoError(t, err)

	return fixture{sched: sched, db: conn, clock: clk, audit: audit, keys: keys}
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Now()),
		AuditSvc:     stubAudit{},
		AccessKeySvc: &stubAccessKeys{},
		Config:       Config{Schedule: "every tuesday"},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOncePrunesExpiredAuditEvents(t *testing.T) {
	f := newFixture(t, Config{AuditRetentionDays: 30, EnabledJobs: []string{JobAuditRetention}})
	ctx := context.Background()

	require.NoError(t, f.audit.Record(ctx, auditdomain.Event{Action: auditdomain.ActionKeyIssued, TargetType: auditdomain.TargetTypeMember}))
	f.clock.Advance(40 * 24 * time.Hour)
	require.NoError(t, f.audit.Record(ctx, auditdomain.Event{Action: auditdomain.ActionKeyRevoked, TargetType: auditdomain.TargetTypeMember}))

	require.NoError(t, f.sched.RunOnce(ctx))

	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Pluck("action", &actions).Error)
	assert.Equal(t, []string{auditdomain.ActionKeyRevoked}, actions)
	assert.Empty(t, f.keys.purgedBefore)
}

func TestKeyCleanupUsesPurgeWindow(t *testing.T) {
	f := newFixture(t, Config{KeyPurgeDays: 30, EnabledJobs: []string{JobKeyCleanup}})

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.Len(t, f.keys.purgedBefore, 1)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, -30), f.keys.purgedBefore[0])

	f.keys.err = errors.New("boom")
	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobKeyCleanup)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "innercircle",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "innercircle",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "innercircle_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "innercircle",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "innercircle_scheduler_job_errors_total", errorLabels))
}

func TestRunJobFailsWhenLockBackendIsDown(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetSchedulerMetricsForTest()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{
		log:    zap.NewNop(),
		genID:  node,
		clock:  clock.NewFakeClock(time.Time{}),
		locker: ratelimit.NewLocker(client),
		cfg:    DefaultConfig(),
	}
	called := false
	err = s.runJob(context.Background(), "locked_job", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, obsmetrics.ErrLockUnavailable)
	assert.False(t, called)
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, Config{Schedule: "@every 1h"})

	require.NoError(t, f.sched.Start())
	require.NoError(t, f.sched.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))
	require.NoError(t, f.sched.Stop(ctx))
}

type stubAudit struct {
	auditdomain.Service
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
