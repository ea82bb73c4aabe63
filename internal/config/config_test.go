package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"juicenet/internal/config"
)

const minimalConfig = `
[paths]
media_roots = ["%s"]

[[servers]]
host = "news.example.com"
tls = true
username = "user"
password = "secret"

[posting]
groups = ["alt.binaries.test"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "juicenet.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Paths.MediaRoots = []string{"/media"}
	cfg.Paths.StateDir = "/state"
	cfg.Servers = []config.Server{{Name: "primary", Host: "news.example.com", Port: 563, TLS: true, Connections: 10}}
	cfg.Posting.Groups = []string{"alt.binaries.test"}
	return cfg
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	media := filepath.Join(tempHome, "media")
	path := writeConfig(t, strings.Replace(minimalConfig, "%s", media, 1))

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, path)
	}
	if len(cfg.Paths.MediaRoots) != 1 || cfg.Paths.MediaRoots[0] != media {
		t.Fatalf("unexpected media roots: %v", cfg.Paths.MediaRoots)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "juicenet")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "juicenet.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	server := cfg.Servers[0]
	if server.Port != 563 {
		t.Fatalf("expected TLS default port 563, got %d", server.Port)
	}
	if server.Name != "news.example.com" {
		t.Fatalf("expected server name to default to host, got %q", server.Name)
	}
	if server.Connections != 20 {
		t.Fatalf("expected default connections, got %d", server.Connections)
	}
	if cfg.Scan.MinFileSizeBytes != 1_000_000 {
		t.Fatalf("expected 1MB min size, got %d", cfg.Scan.MinFileSizeBytes)
	}
	if cfg.Posting.ArticleSizeBytes != 700*1024 {
		t.Fatalf("expected 700KiB article size, got %d", cfg.Posting.ArticleSizeBytes)
	}
	if cfg.Parity.Redundancy != 10 {
		t.Fatalf("expected default redundancy 10, got %d", cfg.Parity.Redundancy)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Verification.SampleMode != config.SampleModeFixed {
		t.Fatalf("unexpected sample mode %q", cfg.Verification.SampleMode)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.StagingDir, cfg.Paths.NZBDir, cfg.Paths.LogDir, cfg.Posting.DumpFailedPosts} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadNormalizesScanRules(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	body := strings.Replace(minimalConfig, "%s", "/media", 1) + `
[scan]
extensions = ["MKV", ".mp4", "mkv", " "]
exclude = [" *.nfo "]
min_file_size = "2 MiB"
`
	cfg, _, _, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []string{".mkv", ".mp4"}
	if strings.Join(cfg.Scan.Extensions, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected extensions: %v", cfg.Scan.Extensions)
	}
	if len(cfg.Scan.Exclude) != 1 || cfg.Scan.Exclude[0] != "*.nfo" {
		t.Fatalf("unexpected exclude patterns: %v", cfg.Scan.Exclude)
	}
	if cfg.Scan.MinFileSizeBytes != 2<<20 {
		t.Fatalf("expected 2MiB, got %d", cfg.Scan.MinFileSizeBytes)
	}
}

func TestEnvPasswordFillsEmptyServerPassword(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JUICENET_NNTP_PASSWORD", "env-secret")
	body := `
[paths]
media_roots = ["/media"]

[[servers]]
name = "a"
host = "a.example.com"
username = "user"

[[servers]]
name = "b"
host = "b.example.com"
username = "user"
password = "file-secret"

[posting]
groups = ["alt.binaries.test"]
`
	cfg, _, _, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Servers[0].Password != "env-secret" {
		t.Errorf("expected env password, got %q", cfg.Servers[0].Password)
	}
	if cfg.Servers[1].Password != "file-secret" {
		t.Errorf("expected file password to win, got %q", cfg.Servers[1].Password)
	}
	if cfg.Servers[0].Port != 119 {
		t.Errorf("expected plain NNTP port, got %d", cfg.Servers[0].Port)
	}
	if cfg.TotalConnections() != 40 {
		t.Errorf("expected 40 total connections, got %d", cfg.TotalConnections())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	body := strings.Replace(minimalConfig, "%s", "/media", 1) + `
[workflow]
wrokers = 4
`
	if _, _, _, err := config.Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadWithoutMediaRootsFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JUICENET_MEDIA_ROOT", "")
	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without media roots")
	}
	if !strings.Contains(err.Error(), "media_roots") {
		t.Fatalf("expected media_roots hint, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "JUICENET_NNTP_PASSWORD") {
		t.Fatalf("sample config missing password hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Connections != 20 {
		t.Fatalf("unexpected sample servers: %+v", cfg.Servers)
	}
	if !strings.Contains(cfg.Paths.StateDir, "juicenet") {
		t.Fatalf("expected state dir to contain juicenet, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := validConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no servers", func(c *config.Config) { c.Servers = nil }},
		{"zero workers", func(c *config.Config) { c.Workflow.Workers = 0 }},
		{"zero attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }},
		{"max delay below base", func(c *config.Config) { c.Retry.MaxDelay = c.Retry.BaseDelay - 1 }},
		{"redundancy above 100", func(c *config.Config) { c.Parity.Redundancy = 150 }},
		{"bad parity output", func(c *config.Config) { c.Parity.Output = "elsewhere" }},
		{"no groups", func(c *config.Config) { c.Posting.Groups = nil }},
		{"bad obfuscation", func(c *config.Config) { c.Posting.Obfuscation = "maybe" }},
		{"bad sample mode", func(c *config.Config) { c.Verification.SampleMode = "random" }},
		{"proportional without percent", func(c *config.Config) {
			c.Verification.SampleMode = config.SampleModeProportional
			c.Verification.SamplePercent = 0
		}},
		{"archive without bucket", func(c *config.Config) { c.NZBArchive.Enabled = true }},
		{"bad exclude pattern", func(c *config.Config) { c.Scan.Exclude = []string{"[unterminated"} }},
		{"duplicate server names", func(c *config.Config) {
			c.Servers = append(c.Servers, c.Servers[0])
		}},
		{"username without password", func(c *config.Config) { c.Servers[0].Username = "user" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
