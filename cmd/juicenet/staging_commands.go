package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"juicenet/internal/logging"
	"juicenet/internal/queue"
	"juicenet/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage staging directories",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staging directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stagingDir := strings.TrimSpace(cfg.Paths.StagingDir)
			dirs, err := staging.ListDirectories(stagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}

			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
			}
			if jsonOut {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      stagingDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No staging directories found")
				return nil
			}
			fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)

			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				age := time.Since(dir.ModTime).Truncate(time.Minute)
				rows = append(rows, []string{dir.Name, formatDuration(age), humanize.IBytes(uint64(dir.Size))})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Directory", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), humanize.IBytes(uint64(totalSize)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print directories as JSON")
	return cmd
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove orphaned staging directories",
		Long: `Remove staging directories that no unfinished release refers to.

With --older-than, remove every staging directory older than the given age
instead, whatever its job state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			return ctx.withStore(true, func(store *queue.Store) error {
				var (
					result staging.CleanStaleResult
					label  = "orphaned"
				)
				if olderThan > 0 {
					result = staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, olderThan, logger)
					label = "stale"
				} else {
					records, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					result = staging.CleanOrphaned(cmd.Context(), cfg.Paths.StagingDir, activeReleaseIDs(records, cfg.Parity.KeepFiles), logger)
				}
				printStagingCleanResult(cmd, result, label)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove directories older than this age (e.g. 72h)")
	return cmd
}

// activeReleaseIDs are the releases whose staging files must survive a
// cleanup. Completed releases keep theirs only when parity.keep_files is set.
func activeReleaseIDs(records []*queue.Record, keepFiles bool) map[string]struct{} {
	active := make(map[string]struct{}, len(records))
	for _, record := range records {
		if keepFiles || record.State != queue.StatusCompleted {
			active[record.ReleaseID] = struct{}{}
		}
	}
	return active
}

func printStagingCleanResult(cmd *cobra.Command, result staging.CleanStaleResult, label string) {
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintf(out, "No %s directories to clean\n", label)
		return
	}
	fmt.Fprintf(out, "Removed %d %s directories", len(result.Removed), label)
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, ", %d errors", len(result.Errors))
	}
	fmt.Fprintln(out)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
