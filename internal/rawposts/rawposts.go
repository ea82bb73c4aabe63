package rawposts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"log/slog"

	"juicenet/internal/config"
	"juicenet/internal/connpool"
	"juicenet/internal/logging"
	"juicenet/internal/services"
	"juicenet/internal/services/nyuu"
)

// Article is one dumped raw article file.
type Article struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Failure records an article that could not be reposted.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result summarizes a repost pass.
type Result struct {
	Total    int       `json:"total"`
	Reposted int       `json:"reposted"`
	Failures []Failure `json:"failures,omitempty"`
}

// Manager lists, clears, and reposts raw articles.
type Manager struct {
	dir        string
	configFile string
	perPost    int
	poster     nyuu.Poster
	pool       *connpool.Pool
	logger     *slog.Logger
}

// NewManager returns nil when no dump directory is configured.
func NewManager(cfg *config.Config, poster nyuu.Poster, pool *connpool.Pool, logger *slog.Logger) *Manager {
	if cfg == nil {
		return nil
	}
	dir := strings.TrimSpace(cfg.Posting.DumpFailedPosts)
	if dir == "" {
		return nil
	}
	m := &Manager{
		dir:        dir,
		configFile: cfg.Posting.NyuuConfig,
		perPost:    cfg.Posting.ConnectionsPerPost,
		poster:     poster,
		pool:       pool,
	}
	m.SetLogger(logger)
	return m
}

// SetLogger swaps the manager logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "rawposts")
}

// Dir is the dump directory.
func (m *Manager) Dir() string {
	if m == nil {
		return ""
	}
	return m.dir
}

// List returns dumped articles ordered by name. A missing directory is empty.
func (m *Manager) List() ([]Article, error) {
	if m == nil {
		return nil, nil
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("rawposts: read %s: %w", m.dir, err)
	}
	articles := make([]Article, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		articles = append(articles, Article{
			Path:       filepath.Join(m.dir, entry.Name()),
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].Name < articles[j].Name })
	return articles, nil
}

// Clear deletes every dumped article and returns how many were removed.
func (m *Manager) Clear() (int, error) {
	articles, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, article := range articles {
		if err := os.Remove(article.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("rawposts: remove %s: %w", article.Path, err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("raw articles deleted",
			logging.String(logging.FieldEventType, "raw_articles_cleared"),
			logging.Int("articles", removed),
		)
	}
	return removed, nil
}

// Repost sends every dumped article again. onArticle, when set, is called after
// each attempt. Failed articles are collected; only cancellation and missing
// collaborators abort the pass.
func (m *Manager) Repost(ctx context.Context, onArticle func(done, total int)) (Result, error) {
	var result Result
	articles, err := m.List()
	if err != nil || len(articles) == 0 {
		return result, err
	}
	if m.poster == nil || m.pool == nil {
		return result, services.Wrap(services.ErrConfiguration, "raw repost", "start", "poster or servers unavailable", nil)
	}
	result.Total = len(articles)
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("reposting raw articles",
		logging.String(logging.FieldEventType, "raw_repost_started"),
		logging.Int("articles", len(articles)),
	)

	for i, article := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := m.repostOne(ctx, article)
		switch {
		case err == nil:
			result.Reposted++
		case ctx.Err() != nil:
			return result, ctx.Err()
		default:
			result.Failures = append(result.Failures, Failure{Path: article.Path, Error: err.Error()})
			logging.WarnWithContext(logger, "raw article repost failed", "raw_repost_failed",
				logging.String("article", article.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "article stays in the dump directory"),
				logging.String(logging.FieldErrorHint, "run juicenet raw repost again or juicenet raw clear"),
			)
		}
		if onArticle != nil {
			onArticle(i+1, len(articles))
		}
	}

	logger.Info("raw repost finished",
		logging.String(logging.FieldEventType, "raw_repost_finished"),
		logging.Int("reposted", result.Reposted),
		logging.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func (m *Manager) repostOne(ctx context.Context, article Article) error {
	lease, err := m.pool.Acquire(ctx, m.perPost)
	if err != nil {
		return err
	}
	defer lease.Release()
	return m.poster.RepostRaw(ctx, nyuu.RepostRequest{
		Path:        article.Path,
		Server:      lease.Server,
		Connections: lease.Connections,
		ConfigFile:  m.configFile,
	})
}
