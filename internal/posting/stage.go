package posting

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"juicenet/internal/config"
	"juicenet/internal/connpool"
	"juicenet/internal/deps"
	"juicenet/internal/logging"
	"juicenet/internal/parity"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
	"juicenet/internal/services/nyuu"
	"juicenet/internal/stage"
)

// Result describes a finished upload.
type Result struct {
	NZBPath        string
	Server         string
	Files          []string
	TotalArticles  int
	Posted         int
	FailedSegments []nyuu.FailedSegment
	Identity       Identity
}

// Option configures the stage.
type Option func(*Stage)

// WithEncoderCheck replaces the yEnc module lookup.
func WithEncoderCheck(check func() deps.Status) Option {
	return func(s *Stage) {
		if check != nil {
			s.encoderCheck = check
		}
	}
}

// WithRandomID replaces the identifier source used for obfuscation.
func WithRandomID(fn func() string) Option {
	return func(s *Stage) {
		s.randomID = fn
	}
}

// Stage posts releases through Nyuu.
type Stage struct {
	cfg          *config.Config
	poster       nyuu.Poster
	pool         *connpool.Pool
	logger       *slog.Logger
	encoderCheck func() deps.Status
	randomID     func() string
}

// NewStage constructs the posting stage.
func NewStage(cfg *config.Config, poster nyuu.Poster, pool *connpool.Pool, logger *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		cfg:    cfg,
		poster: poster,
		pool:   pool,
		encoderCheck: func() deps.Status {
			return deps.CheckNodeModule(cfg.Tools.EncoderModule, cfg.Tools.Nyuu, cfg.Tools.NodePath)
		},
	}
	s.SetLogger(logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger updates the stage logger.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "posting")
}

// HealthCheck reports whether Nyuu and its encoder are usable.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.poster == nil {
		return stage.Unhealthy("posting", "nyuu client unavailable")
	}
	if status := s.encoderCheck(); !status.Available {
		return stage.Unhealthy("posting", status.Detail)
	}
	return stage.Healthy("posting")
}

// NZBPath is where Nyuu writes the release's NZB before it is organized.
func (s *Stage) NZBPath(release scanner.Release) string {
	name := strings.ReplaceAll(release.Name(), "`", "'")
	return filepath.Join(s.cfg.Paths.StagingDir, filepath.FromSlash(release.ID), name+".nzb")
}

// Run posts the release's source files plus the artifact's recovery files.
// On a content failure the partial result carries the failed segments.
func (s *Stage) Run(ctx context.Context, release scanner.Release, artifact *parity.Artifact, progress stage.Progress) (*Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	if s.poster == nil {
		return nil, services.Wrap(services.ErrExternalTool, "post", "start", "nyuu client unavailable", nil)
	}
	if status := s.encoderCheck(); !status.Available {
		return nil, services.Wrap(services.ErrExternalTool, "post", "locate encoder", status.Detail, nil)
	}
	if s.pool == nil {
		return nil, services.Wrap(services.ErrConfiguration, "post", "start", "no servers configured", nil)
	}

	files := release.Paths()
	if artifact != nil {
		files = append(files, artifact.Files...)
	}
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			return nil, services.Wrap(services.ErrPost, "post", "stat input", path, err)
		}
	}

	identity := NewIdentity(s.cfg.Posting, s.randomID)
	nzbPath := s.NZBPath(release)

	progress.Report(0, "waiting for connections")
	lease, err := s.pool.Acquire(ctx, s.cfg.Posting.ConnectionsPerPost)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	logger.Info("posting release",
		logging.Int("files", len(files)),
		logging.Int64("total_bytes", release.TotalBytes),
		logging.String("server", lease.Server.Name),
		logging.Int("connections", lease.Connections),
		logging.String("obfuscation", s.cfg.Posting.Obfuscation),
		logging.String("nzb_path", nzbPath),
	)

	total := 0
	req := nyuu.Request{
		Files:             files,
		NZBPath:           nzbPath,
		Server:            lease.Server,
		Connections:       lease.Connections,
		ArticleSize:       s.cfg.Posting.ArticleSizeBytes,
		Poster:            identity.Poster,
		Groups:            s.cfg.Posting.Groups,
		Subject:           identity.Subject,
		NZBSubject:        identity.NZBSubject,
		ObfuscateArticles: identity.ObfuscateArticles,
		DumpFailedPosts:   s.cfg.Posting.DumpFailedPosts,
		ConfigFile:        s.cfg.Posting.NyuuConfig,
		ExtraArgs:         s.cfg.Posting.ExtraArgs,
		Dir:               release.Dir,
	}
	logger.Debug("nyuu arguments", logging.Strings("args", nyuu.RedactArgs(nyuu.BuildArgs(req))))

	posted, err := s.poster.Post(ctx, req, func(event nyuu.Event) {
		switch event.Kind {
		case nyuu.EventTotal:
			total = event.Total
			progress.Report(0, event.Text)
		case nyuu.EventProgress:
			if event.Total > 0 {
				total = event.Total
			}
			progress.Report(event.Percent(total), event.Text)
		case nyuu.EventWarning:
			logger.Debug("nyuu warning", logging.String("line", event.Text))
		case nyuu.EventError:
			logger.Debug("nyuu error", logging.String("line", event.Text))
		}
	})

	result := &Result{NZBPath: nzbPath, Server: lease.Server.Name, Files: files, Identity: identity}
	if posted != nil {
		result.TotalArticles = posted.TotalArticles
		result.Posted = posted.Posted
		result.FailedSegments = posted.FailedSegments
	}
	if err != nil {
		return result, err
	}
	progress.Report(100, "posted")
	logger.Info("release posted",
		logging.Int("segments", result.TotalArticles),
		logging.String("nzb", filepath.Base(nzbPath)),
	)
	return result, nil
}
