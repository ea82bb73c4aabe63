package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"juicenet/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.MediaRoots = []string{filepath.Join(base, "media")}
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.NZBDir = filepath.Join(base, "nzb")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Posting.DumpFailedPosts = filepath.Join(base, "raw")
	cfgVal.Posting.Groups = []string{"alt.binaries.test"}
	cfgVal.Servers = []config.Server{{
		Name:        "primary",
		Host:        "news.example.com",
		Port:        563,
		TLS:         true,
		Username:    "user",
		Password:    "secret",
		Connections: 8,
	}}
	cfgVal.Retry.BaseDelay = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, root := range builder.cfg.Paths.MediaRoots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatalf("mkdir media root: %v", err)
		}
	}

	return builder.cfg
}

// WithMediaRoots replaces the media roots with directories under the temp base.
func WithMediaRoots(names ...string) ConfigOption {
	return func(b *configBuilder) {
		roots := make([]string, 0, len(names))
		for _, name := range names {
			roots = append(roots, filepath.Join(b.baseDir, name))
		}
		b.cfg.Paths.MediaRoots = roots
	}
}

// WithServers replaces the server pool.
func WithServers(servers ...config.Server) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Servers = servers
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default juicenet external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"nyuu", "parpar", "node"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}

// MediaRoot returns the first media root of the generated config.
func MediaRoot(cfg *config.Config) string {
	return cfg.Paths.MediaRoots[0]
}
