package workflow

import (
	"context"
	"errors"
	"time"

	"juicenet/internal/logging"
	"juicenet/internal/notifications"
	"juicenet/internal/queue"
	"juicenet/internal/retry"
)

const cleanupTimeout = 10 * time.Second

// result settles the release in the job store and builds its summary entry.
func (r *releaseRun) result(outcome Outcome, err error) ReleaseResult {
	result := ReleaseResult{ReleaseID: r.release.ID, Outcome: outcome, Bytes: r.release.TotalBytes}

	// Bookkeeping must land even when the work context is already cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), cleanupTimeout)
	defer cancel()

	if err != nil {
		if r.interrupted(err) {
			result.Outcome = OutcomeInterrupted
			r.rollback(ctx)
		} else {
			result.Outcome = OutcomeFailed
			result.Stage = r.failedStage()
			result.Error = err.Error()
			r.fail(ctx, result.Stage, err)
		}
	}

	if record, getErr := r.c.store.Get(ctx, r.release.ID); getErr == nil && record != nil {
		result.State = record.State
		result.Attempts = record.AttemptCount
		result.NZBPath = record.NZBPath
		if result.Outcome == OutcomeFailed && record.LastError != "" {
			result.Error = record.LastError
		}
		if result.Outcome == OutcomeFailedEarlier {
			result.Stage = record.FailedStage
			result.Error = record.LastError
		}
	}

	switch result.Outcome {
	case OutcomeCompleted:
		r.logger.Info("release completed",
			logging.String(logging.FieldEventType, "release_complete"),
			logging.String("nzb", result.NZBPath),
			logging.Int("attempt", result.Attempts),
		)
	case OutcomeInterrupted:
		r.logger.Info("release interrupted",
			logging.String(logging.FieldEventType, "release_interrupted"),
			logging.String("state", string(result.State)),
		)
	}
	return result
}

func (r *releaseRun) interrupted(err error) bool {
	if errors.Is(err, errStopped) || r.ctx.Err() != nil {
		return true
	}
	return retry.Classify(err) == retry.ClassCancelled && r.stopCtx.Err() != nil
}

func (r *releaseRun) failedStage() queue.Stage {
	if r.stage != "" {
		return r.stage
	}
	if r.record != nil {
		if stg := queue.StageForStatus(r.record.State); stg != "" {
			return stg
		}
	}
	return queue.StageParity
}

func (r *releaseRun) rollback(ctx context.Context) {
	state, err := r.c.store.Rollback(ctx, r.release.ID)
	if err != nil {
		logging.ErrorWithContext(r.logger, "failed to roll back interrupted release", "rollback_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next run resets in-flight releases at startup"),
		)
		return
	}
	r.logger.Debug("release rolled back", logging.String("state", string(state)))
}

func (r *releaseRun) fail(ctx context.Context, stg queue.Stage, stageErr error) {
	logger := r.logger.With(logging.String(logging.FieldStage, string(stg)))
	if r.record == nil {
		logging.ErrorWithContext(logger, "release could not be queued", "release_queue_failed",
			logging.Error(stageErr),
			logging.String(logging.FieldErrorHint, "check the job database in paths.state_dir"),
		)
		return
	}
	class := retry.Classify(stageErr)
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.Error(stageErr),
		logging.String("error_class", class.String()),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorHint, failureHint(class)),
	)
	if err := r.c.store.RecordFailure(ctx, r.release.ID, stg, stageErr.Error()); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	if err := r.c.notifier.Publish(ctx, notifications.EventReleaseFailed, notifications.Payload{
		"release": r.release.ID,
		"stage":   string(stg),
		"error":   stageErr,
	}); err != nil {
		logger.Debug("failure notification failed", logging.Error(err))
	}
}

func failureHint(class retry.Class) string {
	switch class {
	case retry.ClassConnection:
		return "check server host, credentials, and connection limits"
	case retry.ClassContent:
		return "the server rejected articles; set posting.retry_rejected to retry them automatically"
	case retry.ClassPermanent:
		return "fix the reported problem, then run juicenet retry"
	default:
		return "run juicenet retry once the cause is resolved"
	}
}

func (c *Coordinator) notifyRunComplete(summary Summary) {
	if summary.Completed+summary.Failed == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := c.notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"duration":  summary.Duration,
	}); err != nil {
		c.logger.Debug("run notification failed", logging.Error(err))
	}
}
