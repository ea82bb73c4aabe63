package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains media roots and the directories juicenet owns.
type Paths struct {
	MediaRoots []string `toml:"media_roots"`
	StateDir   string   `toml:"state_dir"`
	StagingDir string   `toml:"staging_dir"`
	NZBDir     string   `toml:"nzb_dir"`
	LogDir     string   `toml:"log_dir"`
}

// Tools locates the external Node-based binaries.
type Tools struct {
	Nyuu          string   `toml:"nyuu"`
	ParPar        string   `toml:"parpar"`
	Node          string   `toml:"node"`
	EncoderModule string   `toml:"encoder_module"`
	NodePath      []string `toml:"node_path"`
}

// Scan contains the rules that turn media roots into releases.
type Scan struct {
	Extensions   []string `toml:"extensions"`
	Exclude      []string `toml:"exclude"`
	MinFileSize  string   `toml:"min_file_size"`
	ReleaseDepth int      `toml:"release_depth"`
	MaxDepth     int      `toml:"max_depth"`

	MinFileSizeBytes int64 `toml:"-"`
}

// Parity controls recovery file generation.
type Parity struct {
	Redundancy   int      `toml:"redundancy"`
	Output       string   `toml:"output"`
	MinSliceSize string   `toml:"min_slice_size"`
	MaxSlices    int      `toml:"max_slices"`
	KeepFiles    bool     `toml:"keep_files"`
	ExtraArgs    []string `toml:"extra_args"`

	MinSliceBytes int64 `toml:"-"`
}

// Server describes one NNTP server in the posting pool.
type Server struct {
	Name        string `toml:"name"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	TLS         bool   `toml:"tls"`
	IgnoreCert  bool   `toml:"ignore_cert"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Connections int    `toml:"connections"`
}

// Address returns host:port for dialing.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Posting contains the poster invocation settings.
type Posting struct {
	Groups             []string `toml:"groups"`
	Poster             string   `toml:"poster"`
	ArticleSize        string   `toml:"article_size"`
	Subject            string   `toml:"subject"`
	Obfuscation        string   `toml:"obfuscation"`
	ConnectionsPerPost int      `toml:"connections_per_post"`
	RetryRejected      bool     `toml:"retry_rejected"`
	DumpFailedPosts    string   `toml:"dump_failed_posts"`
	Scope              string   `toml:"scope"`
	NyuuConfig         string   `toml:"nyuu_config"`
	ExtraArgs          []string `toml:"extra_args"`

	ArticleSizeBytes int64 `toml:"-"`
}

// Verification controls NZB consistency and article presence checks.
type Verification struct {
	PresenceCheck  bool    `toml:"presence_check"`
	SampleMode     string  `toml:"sample_mode"`
	SampleCount    int     `toml:"sample_count"`
	SamplePercent  float64 `toml:"sample_percent"`
	Strict         bool    `toml:"strict"`
	SizeTolerance  float64 `toml:"size_tolerance"`
	RequestTimeout int     `toml:"request_timeout"`
}

// Workflow contains worker pool and cancellation timing.
type Workflow struct {
	Workers   int `toml:"workers"`
	StopGrace int `toml:"stop_grace"`
	KillGrace int `toml:"kill_grace"`
}

// Retry contains the per-stage retry policy.
type Retry struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelay   int     `toml:"base_delay"`
	MaxDelay    int     `toml:"max_delay"`
	Multiplier  float64 `toml:"multiplier"`
}

// NZBArchive configures optional S3 archiving of completed NZBs.
type NZBArchive struct {
	Enabled        bool   `toml:"enabled"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ReleaseFailed  bool   `toml:"release_failed"`
	RunComplete    bool   `toml:"run_complete"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for juicenet.
//
// Configuration sections by subsystem:
//   - Paths: media roots, state, staging, and NZB output directories
//   - Tools: nyuu, parpar, node, and the yEnc encoder module
//   - Scan: release grouping and file matching rules
//   - Parity: redundancy and slice sizing
//   - Servers: the NNTP server pool
//   - Posting: groups, subjects, obfuscation, article size
//   - Verification: NZB checks and presence sampling
//   - Workflow: worker count and stop grace periods
//   - Retry: per-stage attempts and backoff
//   - NZBArchive: S3 copy of completed NZBs
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tools         Tools         `toml:"tools"`
	Scan          Scan          `toml:"scan"`
	Parity        Parity        `toml:"parity"`
	Servers       []Server      `toml:"servers"`
	Posting       Posting       `toml:"posting"`
	Verification  Verification  `toml:"verification"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	NZBArchive    NZBArchive    `toml:"nzb_archive"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("juicenet.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories juicenet writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.NZBDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dump := strings.TrimSpace(c.Posting.DumpFailedPosts); dump != "" {
		if err := os.MkdirAll(dump, 0o755); err != nil {
			return fmt.Errorf("create raw article directory %q: %w", dump, err)
		}
	}
	return nil
}

// DatabasePath returns the job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "juicenet.db")
}

// LockPath returns the single-instance run lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "juicenet.lock")
}

// TotalConnections returns the combined connection bound of the server pool.
func (c *Config) TotalConnections() int {
	total := 0
	for _, server := range c.Servers {
		total += server.Connections
	}
	return total
}

// StopGraceDuration is how long in-flight stages may run after a stop request.
func (c *Config) StopGraceDuration() time.Duration {
	return time.Duration(c.Workflow.StopGrace) * time.Second
}

// KillGraceDuration is how long a terminated subprocess has before it is killed.
func (c *Config) KillGraceDuration() time.Duration {
	return time.Duration(c.Workflow.KillGrace) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// VerifyTimeout bounds one NNTP dial or command during checks.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verification.RequestTimeout) * time.Second
}
