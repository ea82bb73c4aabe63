package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/notifications"
	"juicenet/internal/preflight"
	"juicenet/internal/queue"
	"juicenet/internal/scanner"
	"juicenet/internal/staging"
	"juicenet/internal/workflow"
)

type runFlags struct {
	force      bool
	skipRaw    bool
	onlyParity bool
	onlyPost   bool
	jsonOut    bool
	skipChecks bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan media roots and post every pending release",
		Long: `Scan the configured media roots and post every release that has not been
posted yet. Each release gets recovery files, is uploaded, verified, and its
NZB is filed under the NZB directory.

An interrupted run (Ctrl+C) lets running stages finish for workflow.stop_grace
seconds and resumes from the last completed stage next time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.onlyParity && flags.onlyPost {
				return fmt.Errorf("--only-parity and --only-post cannot be combined")
			}
			return runPipeline(cmd, ctx, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Post releases again even if they completed before")
	cmd.Flags().BoolVar(&flags.skipRaw, "skip-raw", false, "Do not repost dumped raw articles before the run")
	cmd.Flags().BoolVar(&flags.onlyParity, "only-parity", false, "Generate recovery files without posting")
	cmd.Flags().BoolVar(&flags.onlyPost, "only-post", false, "Post without generating recovery files")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVar(&flags.skipChecks, "skip-checks", false, "Skip tool and directory checks before the run")
	return cmd
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, flags runFlags) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	display := newRunDisplay(out, flags.jsonOut)

	stream := "stdout"
	if flags.jsonOut || display.enabled() {
		stream = "stderr"
	}
	logger, err := ctx.logger(stream)
	if err != nil {
		return err
	}

	if !flags.skipChecks {
		results := preflight.RunAll(signalCtx, cfg, preflight.Options{
			SkipServers: true,
			SkipPoster:  flags.onlyParity,
			SkipParity:  flags.onlyPost,
		})
		if err := preflight.Failed(results); err != nil {
			return err
		}
	}

	var summary workflow.Summary
	err = ctx.withStore(true, func(store *queue.Store) error {
		components, err := buildPipeline(signalCtx, cfg, logger)
		if err != nil {
			return err
		}
		if err := prepareRun(signalCtx, cfg, store, logger); err != nil {
			return err
		}
		if !flags.skipRaw && !flags.onlyParity {
			repostRawArticles(signalCtx, components, display, logger)
		}

		releases, err := newScanner(cfg, store, logger).Releases(signalCtx, scanner.Options{Force: flags.force})
		if err != nil {
			return err
		}
		coord := workflow.NewCoordinator(cfg, store, components.stages, logger, workflow.WithNotifier(components.notifier))
		summary, err = coord.Run(signalCtx, releases, workflow.Options{
			Force:      flags.force,
			OnlyParity: flags.onlyParity,
			OnlyPost:   flags.onlyPost,
			OnProgress: display.progress,
			OnRelease:  display.release,
		})
		display.finish()
		return err
	})
	if err != nil {
		return err
	}

	if flags.jsonOut {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		printRunSummary(out, summary)
	}
	if code := summary.ExitCode(); code != 0 {
		return exitError{code: code}
	}
	return nil
}

// prepareRun returns releases an unclean exit left in flight to their last
// checkpoint and drops staging directories no job refers to.
func prepareRun(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) error {
	reset, err := store.ResetInFlight(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		logger.Info("reset releases left in flight",
			logging.String(logging.FieldEventType, "tracker_reset"),
			logging.Int64("releases", reset),
		)
	}

	records, err := store.List(ctx)
	if err != nil {
		return err
	}
	result := staging.CleanOrphaned(ctx, cfg.Paths.StagingDir, activeReleaseIDs(records, cfg.Parity.KeepFiles), logger)
	for _, cleanupErr := range result.Errors {
		logger.Warn("staging cleanup failed",
			logging.String("staging_path", cleanupErr.Path),
			logging.Error(cleanupErr.Error),
		)
	}
	return nil
}

func repostRawArticles(ctx context.Context, components *pipeline, display *runDisplay, logger *slog.Logger) {
	if components.raw == nil {
		return
	}
	articles, err := components.raw.List()
	if err != nil {
		logger.Warn("list raw articles failed", logging.Error(err))
		return
	}
	if len(articles) == 0 {
		return
	}

	started := time.Now()
	result, err := components.raw.Repost(ctx, display.rawArticle)
	display.finish()
	if err != nil {
		logger.Warn("raw repost interrupted", logging.Error(err))
		return
	}
	logger.Info("raw articles reposted",
		logging.String(logging.FieldEventType, "raw_repost_complete"),
		logging.Int("reposted", result.Reposted),
		logging.Int("failed", len(result.Failures)),
		logging.Duration("stage_duration", time.Since(started)),
	)
	if err := components.notifier.Publish(ctx, notifications.EventRawRepost, notifications.Payload{
		"total":  result.Total,
		"failed": len(result.Failures),
	}); err != nil {
		logger.Debug("raw repost notification failed", logging.Error(err))
	}
}

// runDisplay draws a progress bar on terminals. Workers report concurrently;
// the bar serializes its own updates.
type runDisplay struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
	on  bool
}

func newRunDisplay(out io.Writer, jsonOut bool) *runDisplay {
	file, ok := out.(*os.File)
	return &runDisplay{out: out, on: ok && !jsonOut && isTerminal(file)}
}

func (d *runDisplay) enabled() bool {
	return d != nil && d.on
}

func (d *runDisplay) ensureBar(total int, description string) *progressbar.ProgressBar {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bar == nil {
		d.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(d.out),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return d.bar
}

func (d *runDisplay) progress(event workflow.ProgressEvent) {
	if !d.enabled() {
		return
	}
	bar := d.ensureBar(-1, "releases")
	bar.Describe(fmt.Sprintf("%s (%s) %.0f%%", event.ReleaseID, event.Stage, event.Percent))
}

func (d *runDisplay) release(workflow.ReleaseResult) {
	if !d.enabled() {
		return
	}
	_ = d.ensureBar(-1, "releases").Add(1)
}

func (d *runDisplay) rawArticle(done, total int) {
	if !d.enabled() {
		return
	}
	_ = d.ensureBar(total, "raw articles").Set(done)
}

func (d *runDisplay) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bar != nil {
		_ = d.bar.Finish()
		d.bar = nil
	}
}

func printRunSummary(out io.Writer, summary workflow.Summary) {
	rows := make([][]string, 0, len(summary.Releases))
	for _, result := range summary.Releases {
		if result.Outcome == workflow.OutcomeSkipped {
			continue
		}
		detail := result.NZBPath
		if result.Outcome == workflow.OutcomeFailed || result.Outcome == workflow.OutcomeFailedEarlier {
			detail = fmt.Sprintf("%s: %s", result.Stage, result.Error)
		}
		rows = append(rows, []string{
			result.ReleaseID,
			string(result.Outcome),
			humanize.IBytes(uint64(max(result.Bytes, 0))),
			fmt.Sprintf("%d", result.Attempts),
			result.Duration.Round(time.Second).String(),
			detail,
		})
	}
	if len(rows) > 0 {
		fmt.Fprint(out, renderTable(
			[]string{"Release", "Outcome", "Size", "Attempts", "Duration", "Detail"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		))
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Completed: %d  Failed: %d  Skipped: %d  Interrupted: %d",
		summary.Completed, summary.Failed, summary.Skipped, summary.Interrupted)
	if summary.FailedEarlier > 0 {
		fmt.Fprintf(out, "  Failed earlier: %d", summary.FailedEarlier)
	}
	if summary.ParityOnly > 0 {
		fmt.Fprintf(out, "  Parity only: %d", summary.ParityOnly)
	}
	fmt.Fprintf(out, "  (%s)\n", summary.Duration.Round(time.Second))
	if summary.Stopped {
		fmt.Fprintln(out, "Run stopped before all releases were processed; run again to resume.")
	}
}
