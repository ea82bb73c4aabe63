package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/nzb"
	"juicenet/internal/posting"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
)

// Report summarises a verification run.
type Report struct {
	Files    int
	Segments int
	Bytes    int64
	Problems []string
	Sampled  int
	Missing  []string
}

// Stage verifies posted releases.
type Stage struct {
	cfg     config.Verification
	checker PresenceChecker
	logger  *slog.Logger
}

// NewStage constructs the verification stage. checker may be nil when
// presence checks are disabled.
func NewStage(cfg *config.Config, checker PresenceChecker, logger *slog.Logger) *Stage {
	s := &Stage{cfg: cfg.Verification, checker: checker}
	s.SetLogger(logger)
	return s
}

// SetLogger updates the stage logger.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "verification")
}

// Run checks the NZB written for the release and, when enabled, samples
// article presence.
func (s *Stage) Run(ctx context.Context, release scanner.Release, posted *posting.Result) (Report, error) {
	logger := logging.WithContext(ctx, s.logger)
	var report Report
	if posted == nil || strings.TrimSpace(posted.NZBPath) == "" {
		return report, services.Wrap(services.ErrVerification, "verify", "load nzb", "no nzb recorded for release", nil)
	}
	doc, err := nzb.ParseFile(posted.NZBPath)
	if err != nil {
		return report, services.Wrap(services.ErrVerification, "verify", "load nzb", posted.NZBPath, err)
	}
	report.Files = len(doc.Files)
	report.Segments = doc.TotalSegments()
	report.Bytes = doc.TotalBytes()

	report.Problems = CheckConsistency(doc, expectation(release, posted, s.cfg.SizeTolerance))
	if len(report.Problems) > 0 {
		for _, problem := range report.Problems {
			logger.Debug("nzb inconsistency", logging.String("problem", problem))
		}
		msg := fmt.Sprintf("%d problem(s), first: %s", len(report.Problems), report.Problems[0])
		return report, services.Wrap(services.ErrVerification, "verify", "check nzb", msg, nil)
	}

	if !s.cfg.PresenceCheck || s.checker == nil {
		logger.Info("nzb verified", logging.Int("files", report.Files), logging.Int("segments", report.Segments))
		return report, nil
	}

	sample := Sample(doc, SampleSize(s.cfg, report.Segments))
	ids := make([]string, 0, len(sample))
	for _, seg := range sample {
		ids = append(ids, seg.MessageID)
	}
	report.Sampled = len(ids)
	missing, err := s.checker.Missing(ctx, ids)
	if err != nil {
		if s.cfg.Strict {
			return report, services.Mark(services.Wrap(services.ErrVerification, "verify", "presence check", "", err), services.ErrTransient)
		}
		logging.WarnWithContext(logger, "presence check unavailable", "verification_presence_unavailable",
			logging.Int("sampled", len(ids)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the verification server; enable verification.strict to retry"),
			logging.String(logging.FieldImpact, "article presence was not confirmed"),
		)
		report.Sampled = 0
		logger.Info("nzb verified", logging.Int("files", report.Files), logging.Int("segments", report.Segments))
		return report, nil
	}
	report.Missing = missing
	if len(missing) > 0 {
		if s.cfg.Strict {
			msg := fmt.Sprintf("%d of %d sampled articles missing", len(missing), len(ids))
			return report, services.Mark(services.Wrap(services.ErrVerification, "verify", "presence check", msg, nil), services.ErrTransient)
		}
		logging.WarnWithContext(logger, "sampled articles missing", "verification_presence_missing",
			logging.Int("missing", len(missing)),
			logging.Int("sampled", len(ids)),
			logging.String(logging.FieldErrorHint, "articles may still be propagating; enable verification.strict to retry"),
			logging.String(logging.FieldImpact, "downloads may need repair from recovery files"),
		)
	}
	logger.Info("nzb verified",
		logging.Int("files", report.Files),
		logging.Int("segments", report.Segments),
		logging.Int("sampled", report.Sampled),
		logging.Int("missing", len(report.Missing)),
	)
	return report, nil
}

func expectation(release scanner.Release, posted *posting.Result, tolerance float64) Expectation {
	sources := make(map[string]int64, len(release.Files))
	for _, file := range release.Files {
		sources[file.Path] = file.Size
	}
	expect := Expectation{ReportedSegments: posted.TotalArticles, SizeTolerance: tolerance}
	paths := posted.Files
	if len(paths) == 0 {
		paths = release.Paths()
	}
	for _, path := range paths {
		size, isSource := sources[path]
		expect.Files = append(expect.Files, ExpectedFile{Name: path, Size: size, Recovery: !isSource})
	}
	return expect
}
