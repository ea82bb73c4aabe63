package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"juicenet/internal/logging"
	"juicenet/internal/preflight"
	"juicenet/internal/queue"
	"juicenet/internal/stage"
	"juicenet/internal/workflow"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipServers bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check tools, directories, servers, and the job database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			logger := logging.NewNop()

			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{SkipServers: skipServers})
			lines := renderSectionHeader("Environment", colorize)
			lines = append(lines, checkLines(results, colorize)...)

			components, err := buildPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			err = ctx.withStore(false, func(store *queue.Store) error {
				status := workflow.NewCoordinator(cfg, store, components.stages, logger).Status(cmd.Context())
				health := make([]stage.Health, 0, len(status.StageHealth))
				for _, h := range status.StageHealth {
					health = append(health, h)
				}
				sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Stages", colorize)...)
				lines = append(lines, healthLines(health, colorize)...)

				dbHealth, dbErr := store.CheckHealth(cmd.Context())
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Job database", colorize)...)
				lines = append(lines, databaseLines(dbHealth, dbErr, colorize)...)
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if preflight.Failed(results) != nil {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipServers, "skip-servers", false, "Do not connect to the NNTP servers")
	return cmd
}

func databaseLines(health queue.DatabaseHealth, err error, colorize bool) []string {
	lines := []string{renderStatusLine("Path", statusInfo, health.DBPath, colorize)}
	if err != nil {
		return append(lines, renderStatusLine("Database", statusError, err.Error(), colorize))
	}
	switch {
	case health.Error != "":
		lines = append(lines, renderStatusLine("Database", statusError, health.Error, colorize))
	case !health.IntegrityCheck:
		lines = append(lines, renderStatusLine("Integrity", statusError, "integrity check failed", colorize))
	default:
		lines = append(lines, renderStatusLine("Database", statusOK, fmt.Sprintf("schema v%d, %d records", health.SchemaVersion, health.TotalRecords), colorize))
	}
	if len(health.MissingColumns) > 0 {
		lines = append(lines, renderStatusLine("Columns", statusWarn, "missing "+strings.Join(health.MissingColumns, ", "), colorize))
	}
	return lines
}
