package scheduler

import (
	"context"
	"errors"

	instalmentdomain "github.com/smallbiznis/directdebit/internal/instalment/domain"
	"github.com/smallbiznis/directdebit/internal/lock"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	"go.uber.org/zap"
)

const resourceInstalmentSchedule = "instalment_schedule"

// InstalmentPollJob claims a batch of due tasks and polls each under its lock.
// Claiming pushes next_attempt_at out by the lock TTL, so a task skipped here
// comes back on a later tick.
func (s *Scheduler) InstalmentPollJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	schedMetrics := obsmetrics.Scheduler()

	tasks, err := s.instalments.ClaimDue(ctx, s.cfg.BatchSize, s.cfg.LockTTL)
	if err != nil {
		return err
	}

	var errs []error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		processed, err := s.pollTask(ctx, task)
		if err != nil {
			s.logSchedulerError(ctx, run, "instalment poll failed", JobInstalmentPoll, task, err)
			errs = append(errs, err)
			continue
		}
		if processed {
			run.AddProcessed(1)
			schedMetrics.AddBatchProcessed(JobInstalmentPoll, resourceInstalmentSchedule, 1)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) pollTask(ctx context.Context, task instalmentdomain.Task) (bool, error) {
	key := lock.TaskKey(task.GatewayID, task.ScheduleID)
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred(JobInstalmentPoll, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("instalment task locked elsewhere",
			zap.String("schedule_id", task.ScheduleID),
		)
		return false, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger(ctx).Warn("release instalment task lock", zap.String("key", key), zap.Error(err))
		}
	}()

	outcome, err := s.instalments.Process(ctx, task)
	if err != nil {
		return false, err
	}
	s.logger(ctx).Debug("instalment task polled",
		zap.String("schedule_id", task.ScheduleID),
		zap.String("outcome", string(outcome)),
	)
	return true, nil
}
