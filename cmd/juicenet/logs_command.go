package main

import (
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"juicenet/internal/logging"
	"juicenet/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines   int
		follow  bool
		raw     bool
		release string
		stage   string
		level   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logging.FilePath(cfg)
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "File logging is disabled (paths.log_dir is empty)")
				return nil
			}

			filter := logs.Filter{
				ReleaseID: strings.TrimSpace(release),
				Stage:     strings.TrimSpace(stage),
				MinLevel:  slog.LevelDebug,
			}
			if level != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid --level %q", level)
				}
			}
			out := cmd.OutOrStdout()
			emit := func(line string) { printLogLine(out, line, filter, raw) }

			// Filters apply after the tail, so read more when filtering.
			limit := lines
			if filter.Narrowing() && limit > 0 {
				limit *= 20
			}
			tail, offset, err := logs.Last(path, limit)
			if err != nil {
				return err
			}
			for _, line := range lastMatching(tail, filter, raw, lines) {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return logs.Follow(followCtx, path, offset, 250*time.Millisecond, emit)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw JSON lines")
	cmd.Flags().StringVar(&release, "release", "", "Only show entries for this release ID")
	cmd.Flags().StringVar(&stage, "stage", "", "Only show entries for this stage")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

// lastMatching keeps the final n lines that pass filter, rendered for output.
func lastMatching(lines []string, filter logs.Filter, raw bool, n int) []string {
	var rendered []string
	for _, line := range lines {
		if text, ok := renderLogLine(line, filter, raw); ok {
			rendered = append(rendered, text)
		}
	}
	if n > 0 && len(rendered) > n {
		rendered = rendered[len(rendered)-n:]
	}
	return rendered
}

func printLogLine(w io.Writer, line string, filter logs.Filter, raw bool) {
	if text, ok := renderLogLine(line, filter, raw); ok {
		fmt.Fprintln(w, text)
	}
}

func renderLogLine(line string, filter logs.Filter, raw bool) (string, bool) {
	entry, err := logs.Parse(line)
	if err != nil {
		// Unfiltered views still show lines that are not JSON.
		return line, !filter.Narrowing()
	}
	if !filter.Match(entry) {
		return "", false
	}
	if raw {
		return line, true
	}
	return logs.Format(entry), true
}
