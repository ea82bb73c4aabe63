package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateParity(); err != nil {
		return err
	}
	if err := c.validateServers(); err != nil {
		return err
	}
	if err := c.validatePosting(); err != nil {
		return err
	}
	if err := c.validateVerification(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if len(c.Paths.MediaRoots) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("paths.media_roots must list at least one directory. Set JUICENET_MEDIA_ROOT or edit %s (create with 'juicenet config init')", defaultPath)
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateScan() error {
	for _, pattern := range c.Scan.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("scan.exclude: invalid pattern %q: %w", pattern, err)
		}
	}
	if c.Scan.ReleaseDepth < 0 {
		return errors.New("scan.release_depth must be >= 0")
	}
	if c.Scan.MaxDepth < 0 {
		return errors.New("scan.max_depth must be >= 0")
	}
	return nil
}

func (c *Config) validateParity() error {
	if c.Parity.Redundancy < 0 || c.Parity.Redundancy > 100 {
		return errors.New("parity.redundancy must be between 0 and 100")
	}
	switch c.Parity.Output {
	case ParityOutputStaging, ParityOutputSource:
	default:
		return fmt.Errorf("parity.output: unsupported value %q (use %q or %q)", c.Parity.Output, ParityOutputStaging, ParityOutputSource)
	}
	if c.Parity.MinSliceBytes <= 0 {
		return errors.New("parity.min_slice_size must be positive")
	}
	if c.Parity.MaxSlices <= 0 || c.Parity.MaxSlices > 32768 {
		return errors.New("parity.max_slices must be between 1 and 32768")
	}
	return nil
}

func (c *Config) validateServers() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one [[servers]] entry is required")
	}
	names := make(map[string]struct{}, len(c.Servers))
	for i, server := range c.Servers {
		if server.Host == "" {
			return fmt.Errorf("servers[%d].host must be set", i)
		}
		if server.Port <= 0 || server.Port > 65535 {
			return fmt.Errorf("servers[%d].port must be between 1 and 65535", i)
		}
		if server.Connections <= 0 {
			return fmt.Errorf("servers[%d].connections must be positive", i)
		}
		if server.Username != "" && server.Password == "" {
			return fmt.Errorf("servers[%d].password must be set when a username is configured (or set JUICENET_NNTP_PASSWORD)", i)
		}
		if _, dup := names[server.Name]; dup {
			return fmt.Errorf("servers[%d].name %q is not unique", i, server.Name)
		}
		names[server.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validatePosting() error {
	if len(c.Posting.Groups) == 0 {
		return errors.New("posting.groups must list at least one newsgroup")
	}
	switch c.Posting.Obfuscation {
	case ObfuscationNone, ObfuscationSubject, ObfuscationFull:
	default:
		return fmt.Errorf("posting.obfuscation: unsupported value %q", c.Posting.Obfuscation)
	}
	switch c.Posting.Scope {
	case ScopePrivate, ScopePublic:
	default:
		return fmt.Errorf("posting.scope: unsupported value %q (want private or public)", c.Posting.Scope)
	}
	if c.Posting.ArticleSizeBytes <= 0 {
		return errors.New("posting.article_size must be positive")
	}
	if c.Posting.ConnectionsPerPost < 0 {
		return errors.New("posting.connections_per_post must be >= 0")
	}
	if strings.Contains(c.Posting.Poster, "\n") {
		return errors.New("posting.poster must be a single line")
	}
	return nil
}

func (c *Config) validateVerification() error {
	switch c.Verification.SampleMode {
	case SampleModeFixed:
		if c.Verification.PresenceCheck && c.Verification.SampleCount <= 0 {
			return errors.New("verification.sample_count must be positive when sample_mode is fixed")
		}
	case SampleModeProportional:
		if c.Verification.SamplePercent <= 0 || c.Verification.SamplePercent > 100 {
			return errors.New("verification.sample_percent must be in (0, 100] when sample_mode is proportional")
		}
	default:
		return fmt.Errorf("verification.sample_mode: unsupported value %q (use %q or %q)", c.Verification.SampleMode, SampleModeFixed, SampleModeProportional)
	}
	if c.Verification.SizeTolerance < 0 || c.Verification.SizeTolerance > 1 {
		return errors.New("verification.size_tolerance must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.kill_grace":           c.Workflow.KillGrace,
		"retry.max_attempts":            c.Retry.MaxAttempts,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.StopGrace < 0 {
		return errors.New("workflow.stop_grace must be >= 0")
	}
	if c.Retry.BaseDelay < 0 {
		return errors.New("retry.base_delay must be >= 0")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry.max_delay must be >= retry.base_delay")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be >= 1")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.NZBArchive.Enabled {
		return nil
	}
	if c.NZBArchive.Bucket == "" {
		return errors.New("nzb_archive.bucket must be set when nzb_archive.enabled is true")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
