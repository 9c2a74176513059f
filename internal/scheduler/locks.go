package scheduler

import (
	"context"
	"fmt"
	"time"

	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"go.uber.org/zap"
)

// acquireJobLock takes the Redis lease for a job so only one replica runs it.
// Without Redis every instance runs its own jobs.
func (s *Scheduler) acquireJobLock(ctx context.Context, job string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}

	lease, err := s.locker.Acquire(ctx, "scheduler:"+job, s.cfg.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", obsmetrics.ErrLockUnavailable, err)
	}
	if lease == nil {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.log.Warn("release job lock failed", zap.String("job", job), zap.Error(err))
		}
	}
	return release, true, nil
}
