package organizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/parity"
	"juicenet/internal/posting"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
)

// Organizer places finished NZBs and removes intermediate files.
type Organizer struct {
	cfg      *config.Config
	archiver Archiver
	logger   *slog.Logger
}

// NewOrganizer constructs the organizer. archiver may be nil.
func NewOrganizer(cfg *config.Config, archiver Archiver, logger *slog.Logger) *Organizer {
	o := &Organizer{cfg: cfg, archiver: archiver}
	o.SetLogger(logger)
	return o
}

// SetLogger swaps the organizer logger.
func (o *Organizer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	o.logger = logging.NewComponentLogger(logger, "organizer")
}

// Organize moves the posted NZB into the output tree and returns its final
// path. Recovery files are deleted unless parity.keep_files is set.
func (o *Organizer) Organize(ctx context.Context, release scanner.Release, posted *posting.Result, artifact *parity.Artifact) (string, error) {
	logger := logging.WithContext(ctx, o.logger)
	if posted == nil || posted.NZBPath == "" {
		return "", services.Wrap(services.ErrVerification, "organize", "locate nzb", "no nzb recorded for release", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	started := time.Now()
	dest := Destination(o.cfg, release)
	if err := o.place(posted.NZBPath, dest, logger); err != nil {
		return "", err
	}
	if err := ValidatePlacement(dest, o.cfg.Paths.NZBDir, logger); err != nil {
		return "", err
	}

	if artifact != nil && !o.cfg.Parity.KeepFiles {
		if err := artifact.Remove(); err != nil {
			logging.WarnWithContext(logger, "failed to remove recovery files", "parity_cleanup_failed",
				logging.Error(err),
				logging.String("output_dir", artifact.OutputDir),
				logging.String(logging.FieldImpact, "recovery files remain on disk"),
			)
		}
	}

	o.removeStagingDir(posted.NZBPath)

	if o.archiver != nil && o.cfg.NZBArchive.Enabled {
		key := ArchiveKey(o.cfg.NZBArchive.Prefix, o.cfg.Paths.NZBDir, dest)
		if err := o.archiver.Archive(ctx, dest, key); err != nil {
			logging.WarnWithContext(logger, "nzb archive upload failed", "nzb_archive_failed",
				logging.Error(err),
				logging.String("archive_key", key),
				logging.String(logging.FieldImpact, "nzb only stored locally"),
			)
		} else {
			logger.Debug("nzb archived", logging.String("archive_key", key))
		}
	}

	logger.Info("nzb organized",
		logging.String(logging.FieldEventType, "nzb_organized"),
		logging.String("nzb", dest),
		logging.Bool("kept_recovery_files", o.cfg.Parity.KeepFiles),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return dest, nil
}

func (o *Organizer) place(src, dest string, logger *slog.Logger) error {
	if src == dest {
		return nil
	}
	err := moveFile(src, dest)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		// A previous attempt moved the NZB before failing later.
		if _, statErr := os.Stat(dest); statErr == nil {
			logger.Debug("nzb already organized", logging.String("nzb_path", dest))
			return nil
		}
	}
	if isOutputUnavailable(err) {
		logging.ErrorWithContext(logger, "nzb directory unavailable", "nzb_dir_unavailable",
			logging.Error(err),
			logging.String("nzb_dir", o.cfg.Paths.NZBDir),
			logging.String(logging.FieldErrorHint, "check that paths.nzb_dir is mounted"),
		)
		return services.Wrap(services.ErrTransient, "organize", "move nzb", "nzb directory unavailable", err)
	}
	return services.Wrap(services.ErrExternalTool, "organize", "move nzb",
		fmt.Sprintf("move %q to %q", src, dest), err)
}

// removeStagingDir drops the per-release staging directory, and parents
// left empty by nested release IDs, up to paths.staging_dir.
func (o *Organizer) removeStagingDir(stagedNZB string) {
	staging := filepath.Clean(o.cfg.Paths.StagingDir)
	if staging == "" || staging == "." {
		return
	}
	for dir := filepath.Dir(stagedNZB); strings.HasPrefix(dir, staging+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
