package main

import (
	"context"
	"log/slog"

	"juicenet/internal/config"
	"juicenet/internal/connpool"
	"juicenet/internal/deps"
	"juicenet/internal/logging"
	"juicenet/internal/notifications"
	"juicenet/internal/organizer"
	"juicenet/internal/parity"
	"juicenet/internal/posting"
	"juicenet/internal/queue"
	"juicenet/internal/rawposts"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
	"juicenet/internal/services/nyuu"
	"juicenet/internal/services/parpar"
	"juicenet/internal/verification"
	"juicenet/internal/workflow"
)

// pipeline holds the components a run wires together.
type pipeline struct {
	pool     *connpool.Pool
	stages   workflow.StageSet
	raw      *rawposts.Manager
	notifier notifications.Service
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	exec := services.ProcessExecutor{KillGrace: cfg.KillGraceDuration()}

	var generator parpar.Generator
	if client, err := parpar.New(cfg.Tools.ParPar, parpar.WithExecutor(exec)); err == nil {
		generator = client
	} else if cfg.Parity.Redundancy > 0 {
		logger.Warn("parpar unavailable", logging.Error(err))
	}

	nyuuOpts := []nyuu.Option{nyuu.WithExecutor(exec)}
	if env := deps.NodePathEnv(cfg.Tools.Nyuu, cfg.Tools.NodePath); env != "" {
		nyuuOpts = append(nyuuOpts, nyuu.WithEnv(env))
	}
	poster, err := nyuu.New(cfg.Tools.Nyuu, nyuuOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "post", "init nyuu", "", err)
	}

	pool := connpool.New(cfg.Servers)

	var checker verification.PresenceChecker
	if cfg.Verification.PresenceCheck {
		checker = verification.NewPoolChecker(pool, cfg.VerifyTimeout())
	}

	var archiver organizer.Archiver
	if cfg.NZBArchive.Enabled {
		s3Archiver, err := organizer.NewS3Archiver(ctx, cfg.NZBArchive)
		if err != nil {
			return nil, err
		}
		archiver = s3Archiver
	}

	return &pipeline{
		pool: pool,
		stages: workflow.StageSet{
			Parity:    parity.NewStage(cfg, generator, logger),
			Post:      posting.NewStage(cfg, poster, pool, logger),
			Verify:    verification.NewStage(cfg, checker, logger),
			Organizer: organizer.NewOrganizer(cfg, archiver, logger),
		},
		raw:      rawposts.NewManager(cfg, poster, pool, logger),
		notifier: notifications.NewService(cfg),
	}, nil
}

// newScanner returns a scanner that skips releases the job database already
// marks as completed.
func newScanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *scanner.Scanner {
	var completion scanner.CompletionChecker
	if store != nil {
		completion = store
	}
	return scanner.New(cfg, completion, logger)
}
