package parity

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
	"juicenet/internal/services/parpar"
	"juicenet/internal/stage"
)

// Stage generates recovery files for releases.
type Stage struct {
	cfg       config.Parity
	staging   string
	generator parpar.Generator
	logger    *slog.Logger
}

// NewStage constructs the parity stage.
func NewStage(cfg *config.Config, generator parpar.Generator, logger *slog.Logger) *Stage {
	s := &Stage{
		cfg:       cfg.Parity,
		staging:   cfg.Paths.StagingDir,
		generator: generator,
	}
	s.SetLogger(logger)
	return s
}

// SetLogger updates the stage logger.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "parity")
}

// HealthCheck reports whether the stage can run.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.generator == nil && s.cfg.Redundancy > 0 {
		return stage.Unhealthy("parity", "parpar client unavailable")
	}
	return stage.Healthy("parity")
}

// OutputDir is where the release's recovery files are written.
func (s *Stage) OutputDir(release scanner.Release) string {
	if s.cfg.Output == config.ParityOutputSource {
		return release.Dir
	}
	return filepath.Join(s.staging, filepath.FromSlash(release.ID))
}

// Run generates the recovery set. A release with zero redundancy passes
// through with a nil artifact.
func (s *Stage) Run(ctx context.Context, release scanner.Release, progress stage.Progress) (*Artifact, error) {
	logger := logging.WithContext(ctx, s.logger)
	if release.ParityPercent <= 0 {
		logger.Debug("parity disabled for release")
		return nil, nil
	}
	if s.generator == nil {
		return nil, services.Wrap(services.ErrExternalTool, "parity", "generate", "parpar client unavailable", nil)
	}
	if len(release.Files) == 0 {
		return nil, services.Wrap(services.ErrParity, "parity", "generate", "release has no files", nil)
	}

	sizes := make([]int64, 0, len(release.Files))
	preserve := false
	for _, file := range release.Files {
		sizes = append(sizes, file.Size)
		if strings.Contains(file.Name, "/") {
			preserve = true
		}
	}
	slice := SliceSize(release.TotalBytes, s.cfg.MaxSlices, s.cfg.MinSliceBytes)
	sourceBlocks := SourceBlocks(sizes, slice)
	outputDir := s.OutputDir(release)
	baseName := release.Name()

	logger.Info("generating recovery files",
		logging.Int("files", len(release.Files)),
		logging.Int64("total_bytes", release.TotalBytes),
		logging.Int("redundancy_percent", release.ParityPercent),
		logging.Int64("slice_bytes", slice),
		logging.Int64("source_blocks", sourceBlocks),
		logging.String("output_dir", outputDir),
	)

	result, err := s.generator.Generate(ctx, parpar.Request{
		Files:         release.Paths(),
		OutputDir:     outputDir,
		BaseName:      baseName,
		Redundancy:    release.ParityPercent,
		SliceSize:     slice,
		PreservePaths: preserve,
		ExtraArgs:     s.cfg.ExtraArgs,
	}, func(update parpar.ProgressUpdate) {
		progress.Report(update.Percent, update.Phase)
	})
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		OutputDir:        outputDir,
		IndexFile:        result.IndexFile,
		Files:            result.Files(),
		SliceSize:        slice,
		SourceBlocks:     sourceBlocks,
		RecoveryBlocks:   result.RecoveryBlocks,
		RequestedPercent: release.ParityPercent,
		InSource:         s.cfg.Output == config.ParityOutputSource,
	}
	if sourceBlocks > 0 {
		artifact.AchievedPercent = float64(result.RecoveryBlocks) / float64(sourceBlocks) * 100
	}
	if artifact.AchievedPercent+0.5 < float64(release.ParityPercent) {
		logging.WarnWithContext(logger, "recovery set below requested redundancy", "parity_below_target",
			logging.Float64("achieved_percent", artifact.AchievedPercent),
			logging.Int("redundancy_percent", release.ParityPercent),
			logging.String(logging.FieldErrorHint, "check parity.extra_args for conflicting -r options"),
			logging.String(logging.FieldImpact, "fewer missing articles can be repaired"),
		)
	}
	progress.Report(100, "recovery files ready")
	logger.Info("recovery files generated",
		logging.Int("recovery_blocks", result.RecoveryBlocks),
		logging.Float64("achieved_percent", artifact.AchievedPercent),
		logging.Int64("recovery_bytes", artifact.RecoveryBytes()),
	)
	return artifact, nil
}
