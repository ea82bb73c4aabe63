package workflow

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/notifications"
	"juicenet/internal/parity"
	"juicenet/internal/posting"
	"juicenet/internal/queue"
	"juicenet/internal/retry"
	"juicenet/internal/scanner"
	"juicenet/internal/stage"
	"juicenet/internal/verification"
)

// ParityRunner generates recovery files for a release.
type ParityRunner interface {
	Run(ctx context.Context, release scanner.Release, progress stage.Progress) (*parity.Artifact, error)
}

// PostRunner uploads a release.
type PostRunner interface {
	Run(ctx context.Context, release scanner.Release, artifact *parity.Artifact, progress stage.Progress) (*posting.Result, error)
}

// VerifyRunner checks a posted release.
type VerifyRunner interface {
	Run(ctx context.Context, release scanner.Release, posted *posting.Result) (verification.Report, error)
}

// Finalizer places the NZB of a verified release.
type Finalizer interface {
	Organize(ctx context.Context, release scanner.Release, posted *posting.Result, artifact *parity.Artifact) (string, error)
}

// StageSet bundles the stage runners the coordinator drives.
type StageSet struct {
	Parity    ParityRunner
	Post      PostRunner
	Verify    VerifyRunner
	Organizer Finalizer
}

// ProgressEvent is forwarded to Options.OnProgress.
type ProgressEvent struct {
	ReleaseID string
	Stage     string
	Percent   float64
	Message   string
}

// Options tune a single run.
type Options struct {
	// Force re-posts releases that already completed.
	Force bool
	// OnlyParity stops each release after its recovery files are written.
	OnlyParity bool
	// OnlyPost skips parity generation; a recorded artifact is still posted.
	OnlyPost bool
	// OnProgress and OnRelease observe the run; both may be called from
	// several workers at once.
	OnProgress func(ProgressEvent)
	OnRelease  func(ReleaseResult)
}

// Coordinator runs releases through the pipeline.
type Coordinator struct {
	cfg      *config.Config
	store    *queue.Store
	stages   StageSet
	policy   retry.Policy
	sleeper  retry.Sleeper
	notifier notifications.Service
	logger   *slog.Logger

	progressInterval time.Duration
}

// CoordinatorOption configures optional Coordinator behavior.
type CoordinatorOption func(*Coordinator)

// WithSleeper replaces the retry sleeper (primarily for tests).
func WithSleeper(sleeper retry.Sleeper) CoordinatorOption {
	return func(c *Coordinator) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithNotifier sets the notification service.
func WithNotifier(notifier notifications.Service) CoordinatorOption {
	return func(c *Coordinator) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithPolicy overrides the retry policy derived from config.
func WithPolicy(policy retry.Policy) CoordinatorOption {
	return func(c *Coordinator) {
		c.policy = policy
	}
}

// NewCoordinator constructs a coordinator.
func NewCoordinator(cfg *config.Config, store *queue.Store, stages StageSet, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:              cfg,
		store:            store,
		stages:           stages,
		policy:           retry.FromConfig(cfg),
		sleeper:          retry.TimerSleeper{},
		notifier:         notifications.NewService(cfg),
		logger:           logging.NewComponentLogger(logger, "workflow"),
		progressInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queuedRelease struct {
	index   int
	release scanner.Release
}

// Run processes releases until the sequence ends or ctx is cancelled. Release
// failures are reported in the Summary; the error is reserved for a scan that
// could not continue.
func (c *Coordinator) Run(ctx context.Context, releases iter.Seq2[scanner.Release, error], opts Options) (Summary, error) {
	summary := Summary{StartedAt: time.Now()}
	if c.store == nil {
		return summary, errors.New("workflow: job store is required")
	}

	// Stages run on workCtx, which outlives ctx by the stop grace period.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stopWatch := context.AfterFunc(ctx, func() {
		grace := c.cfg.StopGraceDuration()
		c.logger.Info("stop requested; waiting for running stages",
			logging.String(logging.FieldEventType, "run_stopping"),
			logging.Duration("stop_grace", grace),
		)
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWork()
		case <-workCtx.Done():
		}
	})
	defer stopWatch()

	workers := c.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		results = make(map[int]ReleaseResult)
		scanErr error
	)

	jobs := make(chan queuedRelease)
	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		index := 0
		for release, err := range releases {
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				mu.Lock()
				scanErr = err
				mu.Unlock()
				return nil
			}
			select {
			case jobs <- queuedRelease{index: index, release: release}:
				index++
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for worker := 1; worker <= workers; worker++ {
		g.Go(func() error {
			for job := range jobs {
				result := c.processRelease(ctx, workCtx, worker, job.release, opts)
				mu.Lock()
				results[job.index] = result
				mu.Unlock()
				if opts.OnRelease != nil {
					opts.OnRelease(result)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	indexes := make([]int, 0, len(results))
	for index := range results {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	for _, index := range indexes {
		summary.add(results[index])
	}
	summary.Stopped = ctx.Err() != nil
	summary.Duration = time.Since(summary.StartedAt)

	c.logRunSummary(summary)
	c.notifyRunComplete(summary)

	return summary, scanErr
}

func (c *Coordinator) logRunSummary(summary Summary) {
	c.logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("failed_earlier", summary.FailedEarlier),
		logging.Int("skipped", summary.Skipped),
		logging.Int("interrupted", summary.Interrupted),
		logging.Int("parity_only", summary.ParityOnly),
		logging.Bool("stopped", summary.Stopped),
		logging.Duration("run_duration", summary.Duration),
	)
}
