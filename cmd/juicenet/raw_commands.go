package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"juicenet/internal/config"
	"juicenet/internal/connpool"
	"juicenet/internal/deps"
	"juicenet/internal/logging"
	"juicenet/internal/rawposts"
	"juicenet/internal/services"
	"juicenet/internal/services/nyuu"
)

func newRawCommand(ctx *commandContext) *cobra.Command {
	rawCmd := &cobra.Command{
		Use:   "raw",
		Short: "Manage raw articles Nyuu dumped after failed posts",
	}

	rawCmd.AddCommand(newRawListCommand(ctx))
	rawCmd.AddCommand(newRawRepostCommand(ctx))
	rawCmd.AddCommand(newRawClearCommand(ctx))

	return rawCmd
}

func rawManager(cfg *config.Config, logger *slog.Logger) (*rawposts.Manager, error) {
	opts := []nyuu.Option{nyuu.WithExecutor(services.ProcessExecutor{KillGrace: cfg.KillGraceDuration()})}
	if env := deps.NodePathEnv(cfg.Tools.Nyuu, cfg.Tools.NodePath); env != "" {
		opts = append(opts, nyuu.WithEnv(env))
	}
	poster, err := nyuu.New(cfg.Tools.Nyuu, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "post", "init nyuu", "", err)
	}
	manager := rawposts.NewManager(cfg, poster, connpool.New(cfg.Servers), logger)
	if manager == nil {
		return nil, errors.New("posting.dump_failed_posts is not configured")
	}
	return manager, nil
}

func newRawListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dumped raw articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager, err := rawManager(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			articles, err := manager.List()
			if err != nil {
				return err
			}
			if jsonOut {
				if articles == nil {
					articles = []rawposts.Article{}
				}
				return writeJSON(cmd, articles)
			}
			out := cmd.OutOrStdout()
			if len(articles) == 0 {
				fmt.Fprintf(out, "No raw articles in %s\n", manager.Dir())
				return nil
			}
			var total int64
			rows := make([][]string, 0, len(articles))
			for _, article := range articles {
				total += article.SizeBytes
				rows = append(rows, []string{article.Name, humanize.IBytes(uint64(article.SizeBytes)), humanize.Time(article.ModifiedAt)})
			}
			fmt.Fprint(out, renderTable([]string{"Article", "Size", "Dumped"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
			fmt.Fprintf(out, "\nTotal: %d articles, %s\n", len(articles), humanize.IBytes(uint64(total)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print articles as JSON")
	return cmd
}

func newRawRepostCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repost",
		Short: "Repost dumped raw articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			display := newRunDisplay(cmd.OutOrStdout(), false)
			stream := "stdout"
			if display.enabled() {
				stream = "stderr"
			}
			logger, err := ctx.logger(stream)
			if err != nil {
				return err
			}
			manager, err := rawManager(cfg, logger)
			if err != nil {
				return err
			}
			lock, err := acquireLock(cfg)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			result, err := manager.Repost(cmd.Context(), display.rawArticle)
			display.finish()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reposted %d of %d raw articles\n", result.Reposted, result.Total)
			for _, failure := range result.Failures {
				fmt.Fprintf(out, "  Failed: %s: %s\n", failure.Path, failure.Error)
			}
			if len(result.Failures) > 0 {
				return exitError{code: 1}
			}
			return nil
		},
	}
}

func newRawClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete dumped raw articles without posting them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager, err := rawManager(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			removed, err := manager.Clear()
			if err != nil {
				return err
			}
			printCount(cmd.OutOrStdout(), int64(removed), "raw article", "deleted")
			return nil
		},
	}
}
