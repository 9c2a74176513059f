package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Error types for scheduler logs.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeLock             = "lock"
	SchedulerErrorTypeUnknown          = "unknown"
)

// Reasons for the job error counter.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonLockUnavailable      = "lock_unavailable"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonDBUnavailable        = "db_unavailable"
	SchedulerJobReasonDB                   = "db"
	SchedulerJobReasonUnknown              = "unknown"
)

// ErrLockUnavailable is reported by jobs that could not reach the lock backend.
var ErrLockUnavailable = errors.New("lock_unavailable")

// SchedulerError is the low-cardinality view of a retention job failure.
type SchedulerError struct {
	Reason    string
	Type      string
	Retryable bool
}

// ClassifySchedulerError maps a job error to its counter reason, log type and
// whether the next scheduled run is expected to succeed.
func ClassifySchedulerError(err error) SchedulerError {
	switch {
	case err == nil:
		return SchedulerError{Reason: SchedulerJobReasonUnknown, Type: SchedulerErrorTypeUnknown}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return SchedulerError{Reason: SchedulerJobReasonDeadlineExceeded, Type: SchedulerErrorTypeDeadlineExceeded, Retryable: true}
	case errors.Is(err, ErrLockUnavailable):
		return SchedulerError{Reason: SchedulerJobReasonLockUnavailable, Type: SchedulerErrorTypeLock, Retryable: true}
	case hasPGCode(err, "55P03"):
		return SchedulerError{Reason: SchedulerJobReasonDBLockTimeout, Type: SchedulerErrorTypeDB, Retryable: true}
	case hasPGCode(err, "40001"):
		return SchedulerError{Reason: SchedulerJobReasonSerializationFailure, Type: SchedulerErrorTypeDB, Retryable: true}
	case db.IsUnavailable(err):
		return SchedulerError{Reason: SchedulerJobReasonDBUnavailable, Type: SchedulerErrorTypeDB, Retryable: true}
	case isDBError(err):
		return SchedulerError{Reason: SchedulerJobReasonDB, Type: SchedulerErrorTypeDB}
	default:
		return SchedulerError{Reason: SchedulerJobReasonUnknown, Type: SchedulerErrorTypeUnknown}
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isDBError(err error) bool {
	for _, target := range []error{
		gorm.ErrInvalidDB,
		gorm.ErrInvalidTransaction,
		gorm.ErrInvalidField,
		gorm.ErrInvalidData,
		gorm.ErrMissingWhereClause,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// SchedulerMetrics captures retention job health.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobSkipped     *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig registers the scheduler metrics on first use. Later
// calls return the same instance whatever cfg they pass.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

var (
	jobDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
	runLoopLagBuckets  = []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
)

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabelsFor(cfg)
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "innercircle_scheduler_" + name,
			Help:        help,
			ConstLabels: labels,
		}, vars)
	}

	m := &SchedulerMetrics{
		jobRuns:        counter("job_runs_total", "Retention job runs by name.", "job"),
		jobTimeouts:    counter("job_timeouts_total", "Retention job runs cut off by their deadline.", "job"),
		jobErrors:      counter("job_errors_total", "Retention job errors by low-cardinality reason.", "job", "reason"),
		jobSkipped:     counter("job_skipped_total", "Retention job runs skipped because another instance held the lock.", "job"),
		batchProcessed: counter("batch_processed_total", "Rows removed by retention jobs.", "job", "resource"),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "innercircle_scheduler_job_duration_seconds",
			Help:        "Retention job latency.",
			Buckets:     jobDurationBuckets,
			ConstLabels: labels,
		}, []string{"job"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "innercircle_scheduler_runloop_lag_seconds",
			Help:        "Delay between a scheduled tick and the run starting.",
			Buckets:     runLoopLagBuckets,
			ConstLabels: labels,
		}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.jobSkipped,
		m.batchProcessed,
		m.runLoopLag,
	)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerError(err).Reason).Inc()
	}
}

// IncJobSkipped counts runs that yielded to another instance.
func (m *SchedulerMetrics) IncJobSkipped(job string) {
	if m != nil {
		m.jobSkipped.WithLabelValues(job).Inc()
	}
}

// AddBatchProcessed adds rows a job removed from resource.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int64) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(lag, 0).Seconds())
	}
}
