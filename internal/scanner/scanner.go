package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/services"
)

// CompletionChecker reports whether a release already finished posting.
type CompletionChecker interface {
	IsCompleted(ctx context.Context, releaseID string) (bool, error)
}

// Options adjust a single scan.
type Options struct {
	// Force yields completed releases as well.
	Force bool
}

// Scanner walks media roots and yields releases.
type Scanner struct {
	roots      []string
	rules      config.Scan
	redundancy int
	completion CompletionChecker
	logger     *slog.Logger
}

// New builds a scanner over the configured media roots. completion may be nil,
// in which case every release is yielded.
func New(cfg *config.Config, completion CompletionChecker, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		roots:      append([]string(nil), cfg.Paths.MediaRoots...),
		rules:      cfg.Scan,
		redundancy: cfg.Parity.Redundancy,
		completion: completion,
		logger:     logging.NewComponentLogger(logger, "scanner"),
	}
}

// Releases checks every root and returns a lazy sequence of releases. An
// unreadable root fails before iteration starts. Unreadable entries below a
// root are logged and skipped. The sequence stops with ctx.Err() once the
// context is cancelled.
func (s *Scanner) Releases(ctx context.Context, opts Options) (iter.Seq2[Release, error], error) {
	if len(s.roots) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "scan", "roots", "no media roots configured", nil)
	}
	for _, root := range s.roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "scan", "open root", root, err)
		}
		if !info.IsDir() {
			return nil, services.Wrap(services.ErrConfiguration, "scan", "open root", root+" is not a directory", nil)
		}
		if _, err := os.ReadDir(root); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "scan", "read root", root, err)
		}
	}

	multiRoot := len(s.roots) > 1
	return func(yield func(Release, error) bool) {
		for _, root := range s.roots {
			prefix := ""
			if multiRoot {
				prefix = filepath.Base(root)
			}
			w := &walker{scanner: s, root: root, prefix: prefix, opts: opts}
			if !w.walkLevel(ctx, root, "", 1, yield) {
				return
			}
		}
	}, nil
}

// Collect drains Releases into a slice.
func (s *Scanner) Collect(ctx context.Context, opts Options) ([]Release, error) {
	seq, err := s.Releases(ctx, opts)
	if err != nil {
		return nil, err
	}
	var releases []Release
	for release, err := range seq {
		if err != nil {
			return releases, err
		}
		releases = append(releases, release)
	}
	return releases, nil
}

type walker struct {
	scanner *Scanner
	root    string
	prefix  string
	opts    Options
}

// walkLevel descends until release depth, yielding releases in name order.
// It returns false once the consumer stopped or the context ended.
func (w *walker) walkLevel(ctx context.Context, dir, rel string, depth int, yield func(Release, error) bool) bool {
	entries, ok := w.readDir(dir)
	if !ok {
		return true
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			yield(Release{}, err)
			return false
		}
		name := entry.Name()
		if w.scanner.excluded(name) {
			continue
		}
		path := filepath.Join(dir, name)
		relPath := filepath.Join(rel, name)

		if entry.IsDir() {
			if depth < w.scanner.releaseDepth() {
				if !w.walkLevel(ctx, path, relPath, depth+1, yield) {
					return false
				}
				continue
			}
			release, found := w.buildRelease(path, relPath)
			if !found {
				continue
			}
			if !w.emit(ctx, release, yield) {
				return false
			}
			continue
		}

		file, keep := w.scanner.sourceFile(entry, path, name)
		if !keep {
			continue
		}
		release := Release{
			ID:            releaseID(w.prefix, relPath),
			Root:          w.root,
			Dir:           dir,
			Files:         []SourceFile{file},
			TotalBytes:    file.Size,
			ParityPercent: w.scanner.redundancy,
			Single:        true,
		}
		if !w.emit(ctx, release, yield) {
			return false
		}
	}
	return true
}

func (w *walker) emit(ctx context.Context, release Release, yield func(Release, error) bool) bool {
	if !w.opts.Force && w.scanner.completion != nil {
		done, err := w.scanner.completion.IsCompleted(ctx, release.ID)
		if err != nil {
			return yield(Release{}, fmt.Errorf("check completion for %s: %w", release.ID, err))
		}
		if done {
			w.scanner.logger.Debug("skipping completed release", logging.String(logging.FieldReleaseID, release.ID))
			return true
		}
	}
	return yield(release, nil)
}

func (w *walker) buildRelease(dir, rel string) (Release, bool) {
	release := Release{
		ID:            releaseID(w.prefix, rel),
		Root:          w.root,
		Dir:           dir,
		ParityPercent: w.scanner.redundancy,
	}
	w.collectFiles(dir, "", 1, &release)
	if len(release.Files) == 0 {
		w.scanner.logger.Debug("release has no eligible files",
			logging.String(logging.FieldReleaseID, release.ID),
			logging.String("release_dir", dir),
		)
		return Release{}, false
	}
	return release, true
}

func (w *walker) collectFiles(dir, rel string, depth int, release *Release) {
	entries, ok := w.readDir(dir)
	if !ok {
		return
	}
	maxDepth := w.scanner.rules.MaxDepth
	for _, entry := range entries {
		name := entry.Name()
		if w.scanner.excluded(name) {
			continue
		}
		path := filepath.Join(dir, name)
		relName := filepath.Join(rel, name)
		if entry.IsDir() {
			if maxDepth > 0 && depth >= maxDepth {
				continue
			}
			w.collectFiles(path, relName, depth+1, release)
			continue
		}
		file, keep := w.scanner.sourceFile(entry, path, relName)
		if !keep {
			continue
		}
		release.Files = append(release.Files, file)
		release.TotalBytes += file.Size
	}
}

func (w *walker) readDir(dir string) ([]fs.DirEntry, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		scanErr := services.Wrap(services.ErrScan, "scan", "read directory", dir, err)
		logging.WarnWithContext(w.scanner.logger, "skipping unreadable directory", "scan_entry_unreadable",
			logging.String("entry_path", dir),
			logging.Error(scanErr),
			logging.String(logging.FieldErrorHint, "check permissions on the media root"),
			logging.String(logging.FieldImpact, "files below this directory are not posted"),
		)
		return nil, false
	}
	return entries, true
}

func (s *Scanner) sourceFile(entry fs.DirEntry, path, name string) (SourceFile, bool) {
	if !entry.Type().IsRegular() {
		return SourceFile{}, false
	}
	if !s.matchesExtension(entry.Name()) {
		return SourceFile{}, false
	}
	info, err := entry.Info()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "skipping unreadable file", "scan_entry_unreadable",
				logging.String("entry_path", path),
				logging.Error(services.Wrap(services.ErrScan, "scan", "stat", path, err)),
				logging.String(logging.FieldErrorHint, "check file permissions"),
			)
		}
		return SourceFile{}, false
	}
	size := info.Size()
	if size == 0 || size < s.rules.MinFileSizeBytes {
		return SourceFile{}, false
	}
	return SourceFile{Path: path, Name: filepath.ToSlash(name), Size: size}, true
}

func (s *Scanner) matchesExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".par2" {
		return false
	}
	if len(s.rules.Extensions) == 0 {
		return true
	}
	return slices.Contains(s.rules.Extensions, ext)
}

func (s *Scanner) excluded(name string) bool {
	for _, pattern := range s.rules.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (s *Scanner) releaseDepth() int {
	if s.rules.ReleaseDepth < 1 {
		return 1
	}
	return s.rules.ReleaseDepth
}
