package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"juicenet/internal/logging"
	"juicenet/internal/queue"
	"juicenet/internal/retry"
	"juicenet/internal/services"
	"juicenet/internal/stage"
)

// attempt runs fn until it succeeds or the retry policy gives up. Every
// attempt is counted in the job store before it starts.
func (r *releaseRun) attempt(stg queue.Stage, fn func(ctx context.Context) error) error {
	r.stage = stg
	for {
		if err := r.checkStop(); err != nil {
			return err
		}
		attempt, err := r.c.store.RecordAttempt(r.ctx, r.release.ID, stg)
		if err != nil {
			return err
		}

		ctx := services.WithStage(r.ctx, string(stg))
		ctx = services.WithRequestID(ctx, uuid.NewString())
		logger := logging.WithContext(ctx, r.c.logger)
		logger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.c.policy.MaxAttempts),
		)

		started := time.Now()
		err = fn(ctx)
		if err == nil {
			logger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Duration("stage_duration", time.Since(started)),
			)
			return nil
		}
		if r.ctx.Err() != nil {
			logger.Debug("stage interrupted by shutdown", logging.Error(err))
			return err
		}

		decision := r.c.policy.Decide(attempt, err)
		if !decision.Retry {
			if decision.Class != retry.ClassCancelled {
				logger.Debug("retry policy gave up",
					logging.String("error_class", decision.Class.String()),
					logging.Int("attempt", attempt),
				)
			}
			return err
		}

		if recordErr := r.c.store.RecordError(ctx, r.release.ID, stg, err.Error()); recordErr != nil {
			logger.Debug("failed to record stage error", logging.Error(recordErr))
		}
		logging.WarnWithContext(logger, "stage attempt failed; retrying", "stage_retry",
			logging.Error(err),
			logging.String("error_class", decision.Class.String()),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.c.policy.MaxAttempts),
			logging.Duration("backoff", decision.Delay),
			logging.String(logging.FieldImpact, "stage runs again after the backoff"),
		)
		if err := r.c.sleeper.Sleep(r.stopCtx, decision.Delay); err != nil {
			return errStopped
		}
	}
}

// progress persists stage progress at a bounded rate, logs it in 10% steps,
// and forwards it to the run observer.
func (r *releaseRun) progress(ctx context.Context, stg queue.Stage) stage.Progress {
	name := string(stg)
	logger := logging.WithContext(ctx, r.c.logger)
	sampler := logging.NewProgressSampler(10)
	persist := stage.Throttled(func(percent float64, message string) {
		if err := r.c.store.UpdateProgress(ctx, r.release.ID, name, percent, message); err != nil {
			logger.Debug("failed to persist progress", logging.Error(err))
		}
	}, r.c.progressInterval)

	return func(percent float64, message string) {
		persist(percent, message)
		if sampler.ShouldLog(percent, name, message) {
			logger.Info("stage progress",
				logging.String(logging.FieldEventType, "stage_progress"),
				logging.Float64(logging.FieldProgressPercent, percent),
				logging.String(logging.FieldProgressMessage, message),
			)
		}
		if r.opts.OnProgress != nil {
			r.opts.OnProgress(ProgressEvent{ReleaseID: r.release.ID, Stage: name, Percent: percent, Message: message})
		}
	}
}
