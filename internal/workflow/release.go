package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"juicenet/internal/logging"
	"juicenet/internal/organizer"
	"juicenet/internal/parity"
	"juicenet/internal/posting"
	"juicenet/internal/queue"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
)

// errStopped ends a release between stages after a stop request.
var errStopped = errors.New("run stopped")

// releaseRun carries the state of one release through one run.
type releaseRun struct {
	c       *Coordinator
	stopCtx context.Context
	ctx     context.Context
	release scanner.Release
	opts    Options
	logger  *slog.Logger

	record   *queue.Record
	artifact *parity.Artifact
	posted   *posting.Result
	stage    queue.Stage
}

func (c *Coordinator) processRelease(stopCtx, workCtx context.Context, worker int, release scanner.Release, opts Options) ReleaseResult {
	ctx := services.WithReleaseID(workCtx, release.ID)
	ctx = services.WithWorker(ctx, worker)
	run := &releaseRun{
		c:       c,
		stopCtx: stopCtx,
		ctx:     ctx,
		release: release,
		opts:    opts,
		logger:  logging.WithContext(ctx, c.logger),
	}

	started := time.Now()
	outcome, err := run.execute()
	result := run.result(outcome, err)
	result.Duration = time.Since(started)
	return result
}

func (r *releaseRun) execute() (Outcome, error) {
	store := r.c.store
	record, err := store.Enqueue(r.ctx, r.release)
	if err != nil {
		return OutcomeFailed, err
	}
	r.record = record

	switch {
	case record.State == queue.StatusCompleted && !r.opts.Force:
		r.logger.Debug("release already completed")
		return OutcomeSkipped, nil
	case record.State == queue.StatusCompleted:
		if err := store.Requeue(r.ctx, r.release.ID); err != nil {
			return OutcomeFailed, err
		}
		r.logger.Info("re-posting completed release", logging.String(logging.FieldEventType, "release_requeued"))
	case record.State == queue.StatusFailed:
		logging.WarnWithContext(r.logger, "release failed in an earlier run; not retried", "release_failed_earlier",
			logging.String("failed_stage", string(record.FailedStage)),
			logging.String("last_error", record.LastError),
			logging.String(logging.FieldErrorHint, "run juicenet retry to queue it again"),
		)
		return OutcomeFailedEarlier, nil
	case record.State.IsInFlight():
		if _, err := store.Rollback(r.ctx, r.release.ID); err != nil {
			return OutcomeFailed, err
		}
	}
	if err := r.refresh(); err != nil {
		return OutcomeFailed, err
	}

	r.logger.Info("release started",
		logging.String(logging.FieldEventType, "release_start"),
		logging.String("state", string(r.record.State)),
		logging.Int("files", len(r.release.Files)),
		logging.Int64("total_bytes", r.release.TotalBytes),
		logging.Int("redundancy_percent", r.release.ParityPercent),
	)
	return r.advance()
}

// advance walks the state machine from the persisted state.
func (r *releaseRun) advance() (Outcome, error) {
	state := r.record.State
	if state == queue.StatusPending {
		if err := r.transition(queue.StatusPending, queue.StatusParityInProgress); err != nil {
			return OutcomeFailed, err
		}
		state = queue.StatusParityInProgress
	}

	if state == queue.StatusParityInProgress {
		if err := r.runParity(); err != nil {
			return OutcomeFailed, err
		}
		if r.opts.OnlyParity {
			r.logger.Info("recovery files ready; posting skipped",
				logging.String(logging.FieldEventType, "parity_only"),
			)
			return OutcomeParityOnly, nil
		}
		if err := r.checkStop(); err != nil {
			return OutcomeFailed, err
		}
		if err := r.transition(queue.StatusParityInProgress, queue.StatusPosting); err != nil {
			return OutcomeFailed, err
		}
		state = queue.StatusPosting
	}

	if state == queue.StatusPosting {
		if err := r.runPost(); err != nil {
			return OutcomeFailed, err
		}
		if err := r.checkStop(); err != nil {
			return OutcomeFailed, err
		}
		if err := r.transition(queue.StatusPosting, queue.StatusVerifying); err != nil {
			return OutcomeFailed, err
		}
		state = queue.StatusVerifying
	}

	if state == queue.StatusVerifying {
		if err := r.runVerify(); err != nil {
			return OutcomeFailed, err
		}
		if err := r.transition(queue.StatusVerifying, queue.StatusCompleted); err != nil {
			return OutcomeFailed, err
		}
	}
	return OutcomeCompleted, nil
}

func (r *releaseRun) runParity() error {
	if r.record.HasParity() {
		artifact, err := parity.ParseArtifact(r.record.ParityJSON)
		if err == nil && (r.record.HasPost() || artifact.Exists()) {
			r.artifact = artifact
			r.logger.Info("reusing recorded recovery files",
				logging.String(logging.FieldEventType, "parity_resumed"),
				logging.Int("recovery_files", len(artifact.Files)),
			)
			return nil
		}
		logging.WarnWithContext(r.logger, "recorded recovery files unavailable; regenerating", "parity_checkpoint_stale",
			logging.String(logging.FieldImpact, "recovery files are generated again"),
			logging.String(logging.FieldErrorHint, "recovery files were removed from the staging directory"),
		)
	}
	if r.record.HasPost() {
		r.logger.Debug("post checkpoint without recovery files; parity skipped")
		return nil
	}
	if r.opts.OnlyPost {
		r.logger.Info("parity generation skipped", logging.String(logging.FieldEventType, "parity_skipped"))
		return nil
	}
	if r.c.stages.Parity == nil {
		return services.Wrap(services.ErrConfiguration, "parity", "start", "parity stage unavailable", nil)
	}

	return r.attempt(queue.StageParity, func(ctx context.Context) error {
		artifact, err := r.c.stages.Parity.Run(ctx, r.release, r.progress(ctx, queue.StageParity))
		if err != nil {
			return err
		}
		r.artifact = artifact
		if artifact == nil {
			return nil
		}
		raw, err := artifact.Marshal()
		if err != nil {
			return services.Wrap(services.ErrParity, "parity", "record artifact", "", err)
		}
		return r.c.store.SaveParity(ctx, r.release.ID, raw)
	})
}

func (r *releaseRun) runPost() error {
	if r.record.HasPost() {
		if posted := r.resumePost(); posted != nil {
			r.posted = posted
			r.logger.Info("reusing posted nzb",
				logging.String(logging.FieldEventType, "post_resumed"),
				logging.String("nzb_path", posted.NZBPath),
			)
			return nil
		}
		logging.WarnWithContext(r.logger, "recorded nzb missing; posting again", "post_checkpoint_stale",
			logging.String("nzb_path", r.record.NZBPath),
			logging.String(logging.FieldImpact, "release is uploaded again"),
		)
	}
	if r.c.stages.Post == nil {
		return services.Wrap(services.ErrConfiguration, "post", "start", "post stage unavailable", nil)
	}

	return r.attempt(queue.StagePost, func(ctx context.Context) error {
		posted, err := r.c.stages.Post.Run(ctx, r.release, r.artifact, r.progress(ctx, queue.StagePost))
		if err != nil {
			if posted != nil && len(posted.FailedSegments) > 0 {
				r.logger.Debug("failed segments",
					logging.Int("failed_segments", len(posted.FailedSegments)),
					logging.String("first_message_id", posted.FailedSegments[0].MessageID),
				)
			}
			return err
		}
		r.posted = posted
		return r.c.store.SavePostResult(ctx, r.release.ID, posted.NZBPath, posted.TotalArticles, len(posted.FailedSegments))
	})
}

// resumePost rebuilds the post result from the record. The NZB may already
// have been moved by an organize step that ran before the interruption.
func (r *releaseRun) resumePost() *posting.Result {
	candidates := []string{r.record.NZBPath, organizer.Destination(r.c.cfg, r.release)}
	for _, path := range candidates {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		files := r.release.Paths()
		if r.artifact != nil {
			files = append(files, r.artifact.Files...)
		}
		return &posting.Result{
			NZBPath:       path,
			Files:         files,
			TotalArticles: r.record.SegmentsTotal,
		}
	}
	return nil
}

func (r *releaseRun) runVerify() error {
	if r.posted == nil {
		if r.posted = r.resumePost(); r.posted == nil {
			return services.Wrap(services.ErrVerification, "verify", "load nzb", "no nzb recorded for release", nil)
		}
	}
	if r.c.stages.Verify == nil {
		return services.Wrap(services.ErrConfiguration, "verify", "start", "verify stage unavailable", nil)
	}

	return r.attempt(queue.StageVerify, func(ctx context.Context) error {
		if _, err := r.c.stages.Verify.Run(ctx, r.release, r.posted); err != nil {
			return err
		}
		if r.c.stages.Organizer == nil {
			return nil
		}
		final, err := r.c.stages.Organizer.Organize(ctx, r.release, r.posted, r.artifact)
		if err != nil {
			return err
		}
		r.posted.NZBPath = final
		return r.c.store.SetNZBPath(ctx, r.release.ID, final)
	})
}

func (r *releaseRun) checkStop() error {
	if r.stopCtx.Err() != nil {
		return errStopped
	}
	return nil
}

func (r *releaseRun) refresh() error {
	record, err := r.c.store.Get(r.ctx, r.release.ID)
	if err != nil {
		return err
	}
	if record == nil {
		return queue.ErrNotFound
	}
	r.record = record
	return nil
}

// transition moves the record forward. A concurrency conflict is a tracker
// bug; the state is re-read once and the run continues only when the record
// already holds the target state.
func (r *releaseRun) transition(from, to queue.Status) error {
	err := r.c.store.Transition(r.ctx, r.release.ID, from, to)
	if err == nil || !errors.Is(err, queue.ErrConcurrency) {
		return err
	}
	status, statusErr := r.c.store.Status(r.ctx, r.release.ID)
	logging.ErrorWithContext(r.logger, "job state changed concurrently", "tracker_concurrency",
		logging.Error(err),
		logging.String("expected_state", string(from)),
		logging.String("target_state", string(to)),
		logging.String("persisted_state", string(status)),
		logging.String(logging.FieldErrorHint, "only one juicenet process may use a state directory; report this as a bug"),
	)
	if statusErr == nil && status == to {
		return nil
	}
	return err
}
