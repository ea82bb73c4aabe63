package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"juicenet/internal/queue"
	"juicenet/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var force, jsonOut bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the releases a run would post",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stream := "stdout"
			if jsonOut {
				stream = "stderr"
			}
			logger, err := ctx.logger(stream)
			if err != nil {
				return err
			}
			return ctx.withStore(false, func(store *queue.Store) error {
				releases, err := newScanner(cfg, store, logger).Collect(cmd.Context(), scanner.Options{Force: force})
				if err != nil {
					return err
				}
				if jsonOut {
					if releases == nil {
						releases = []scanner.Release{}
					}
					return writeJSON(cmd, releases)
				}
				out := cmd.OutOrStdout()
				if len(releases) == 0 {
					fmt.Fprintln(out, "Nothing to post")
					return nil
				}
				var total int64
				rows := make([][]string, 0, len(releases))
				for _, release := range releases {
					total += release.TotalBytes
					rows = append(rows, []string{
						release.ID,
						strconv.Itoa(len(release.Files)),
						humanize.IBytes(uint64(release.TotalBytes)),
						strconv.Itoa(release.ParityPercent) + "%",
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Release", "Files", "Size", "Parity"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
				))
				fmt.Fprintf(out, "\nTotal: %d releases, %s\n", len(releases), humanize.IBytes(uint64(total)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Include releases that were already posted")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print releases as JSON")
	return cmd
}
