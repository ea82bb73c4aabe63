package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"juicenet/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show job counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(false, func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					counts := make(map[string]int, len(stats))
					for status, count := range stats {
						counts[string(status)] = count
					}
					return writeJSON(cmd, map[string]any{
						"states":     counts,
						"total":      health.Total,
						"pending":    health.Pending,
						"processing": health.Processing,
						"failed":     health.Failed,
						"completed":  health.Completed,
						"database":   store.Path(),
					})
				}

				rows := buildStatusRows(stats)
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "Job database is empty")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "\nTotal: %d (%d pending, %d in progress, %d failed, %d completed)\n",
					health.Total, health.Pending, health.Processing, health.Failed, health.Completed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print counts as JSON")
	return cmd
}

func buildStatusRows(stats map[queue.Status]int) [][]string {
	var rows [][]string
	for _, status := range queue.AllStatuses() {
		if count := stats[status]; count > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(count)})
		}
	}
	return rows
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List releases in the job database",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withStore(false, func(store *queue.Store) error {
				records, err := store.List(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if jsonOut {
					if records == nil {
						records = []*queue.Record{}
					}
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No releases found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Release", "State", "Size", "Attempts", "Updated", "Detail"},
					buildListRows(records),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only list releases in these states")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print records as JSON")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown state %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func buildListRows(records []*queue.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.ReleaseID,
			stateLabel(record),
			humanize.IBytes(uint64(max(record.TotalBytes, 0))),
			fmt.Sprintf("%d/%d/%d", record.ParityAttempts, record.PostAttempts, record.VerifyAttempts),
			humanize.Time(record.UpdatedAt),
			recordDetail(record),
		})
	}
	return rows
}

func stateLabel(record *queue.Record) string {
	if record.State.IsInFlight() && record.ProgressPercent > 0 {
		return fmt.Sprintf("%s (%.0f%%)", record.State, record.ProgressPercent)
	}
	return string(record.State)
}

func recordDetail(record *queue.Record) string {
	switch {
	case record.State == queue.StatusFailed:
		detail := record.LastError
		if len(detail) > 80 {
			detail = detail[:77] + "..."
		}
		return fmt.Sprintf("%s: %s", record.FailedStage, detail)
	case record.NZBPath != "":
		return record.NZBPath
	default:
		return record.ProgressMessage
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [release-id...]",
		Short: "Queue failed releases again",
		Long: `Return failed releases to pending. Only the attempt count of the stage that
failed is reset; recovery files and NZBs from earlier stages are reused.
Without arguments every failed release is retried.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(true, func(store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				printCount(cmd.OutOrStdout(), count, "release", "queued for retry")
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return releases stuck in progress to their last checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(true, func(store *queue.Store) error {
				count, err := store.ResetInFlight(cmd.Context())
				if err != nil {
					return err
				}
				printCount(cmd.OutOrStdout(), count, "release", "reset")
				return nil
			})
		},
	}
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <release-id>...",
		Short: "Post completed releases again on the next run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(true, func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, id := range args {
					if err := store.Requeue(cmd.Context(), id); err != nil {
						switch {
						case errors.Is(err, queue.ErrNotFound):
							fmt.Fprintf(out, "Release %s not found\n", id)
						case errors.Is(err, queue.ErrConcurrency):
							fmt.Fprintf(out, "Release %s is not completed\n", id)
						default:
							return err
						}
						failed = append(failed, id)
						continue
					}
					fmt.Fprintf(out, "Release %s requeued\n", id)
				}
				if len(failed) > 0 {
					return fmt.Errorf("could not requeue %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var completed, failed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove releases from the job database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if completed && failed {
				return errors.New("--completed and --failed cannot be combined")
			}
			return ctx.withStore(true, func(store *queue.Store) error {
				var (
					count int64
					err   error
					label = "release"
				)
				switch {
				case completed:
					count, err = store.ClearCompleted(cmd.Context())
					label = "completed release"
				case failed:
					count, err = store.ClearFailed(cmd.Context())
					label = "failed release"
				default:
					count, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				printCount(cmd.OutOrStdout(), count, label, "removed")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Only remove completed releases")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only remove failed releases")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <release-id>...",
		Short: "Remove specific releases from the job database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(true, func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					removed, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Release %s removed\n", id)
					} else {
						fmt.Fprintf(out, "Release %s not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func printCount(out io.Writer, count int64, noun, verb string) {
	if count == 1 {
		fmt.Fprintf(out, "1 %s %s\n", noun, verb)
		return
	}
	fmt.Fprintf(out, "%d %ss %s\n", count, noun, verb)
}
