package scheduler

import (
	"context"
	"time"

	obscontext "github.com/abrahamoflondon/innercircle/internal/observability/context"
	obslogger "github.com/abrahamoflondon/innercircle/internal/observability/logger"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a retention job for its start and finish
// log lines.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	cutoff    time.Time
	purged    int64
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) addPurged(n int64) {
	if r != nil && n > 0 {
		r.purged += n
	}
}

func (r *jobRun) fail() {
	if r != nil {
		r.failures++
	}
}

// ensureJobRun reuses a run already on ctx so a job invoked through runJob
// logs once. owner is true for the caller that created the run.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (r *jobRun) fields() []zap.Field {
	return []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
	}
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start", run.fields()...)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := append(run.fields(),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int64("purged", run.purged),
		zap.Int("failures", run.failures),
	)
	if !run.cutoff.IsZero() {
		fields = append(fields, zap.Time("cutoff", run.cutoff))
	}

	log := s.logger(ctx)
	if run.failures > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, err error) {
	if err == nil || run == nil {
		return
	}
	run.fail()
	class := obsmetrics.ClassifySchedulerError(err)
	s.logger(ctx).Error("scheduler.job.failed", append(run.fields(),
		zap.String("error_type", class.Type),
		zap.Bool("retryable", class.Retryable),
		zap.Time("cutoff", run.cutoff),
		zap.Error(err),
	)...)
}
