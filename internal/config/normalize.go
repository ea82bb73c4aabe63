package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	if err := c.normalizeScan(); err != nil {
		return err
	}
	if err := c.normalizeParity(); err != nil {
		return err
	}
	c.normalizeServers()
	if err := c.normalizePosting(); err != nil {
		return err
	}
	c.normalizeVerification()
	c.normalizeArchive()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("JUICENET_MEDIA_ROOT"); ok && len(c.Paths.MediaRoots) == 0 {
		c.Paths.MediaRoots = strings.Split(value, string(os.PathListSeparator))
	}
	roots := make([]string, 0, len(c.Paths.MediaRoots))
	seen := make(map[string]struct{}, len(c.Paths.MediaRoots))
	for i, root := range c.Paths.MediaRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("paths.media_roots[%d]: %w", i, err)
		}
		if _, dup := seen[expanded]; dup {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Paths.MediaRoots = roots

	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.NZBDir) == "" {
		c.Paths.NZBDir = defaultNZBDir
	}
	if c.Paths.NZBDir, err = expandPath(c.Paths.NZBDir); err != nil {
		return fmt.Errorf("paths.nzb_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Nyuu = strings.TrimSpace(c.Tools.Nyuu)
	if c.Tools.Nyuu == "" {
		c.Tools.Nyuu = defaultNyuuBinary
	}
	c.Tools.ParPar = strings.TrimSpace(c.Tools.ParPar)
	if c.Tools.ParPar == "" {
		c.Tools.ParPar = defaultParParBinary
	}
	c.Tools.Node = strings.TrimSpace(c.Tools.Node)
	if c.Tools.Node == "" {
		c.Tools.Node = defaultNodeBinary
	}
	c.Tools.EncoderModule = strings.TrimSpace(c.Tools.EncoderModule)
	if c.Tools.EncoderModule == "" {
		c.Tools.EncoderModule = defaultEncoderModule
	}
	if len(c.Tools.NodePath) == 0 {
		if value, ok := os.LookupEnv("NODE_PATH"); ok && strings.TrimSpace(value) != "" {
			c.Tools.NodePath = strings.Split(value, string(os.PathListSeparator))
		}
	}
	paths := c.Tools.NodePath[:0]
	for _, p := range c.Tools.NodePath {
		if expanded, err := expandPath(strings.TrimSpace(p)); err == nil && expanded != "" {
			paths = append(paths, expanded)
		}
	}
	c.Tools.NodePath = paths
}

func (c *Config) normalizeScan() error {
	exts := make([]string, 0, len(c.Scan.Extensions))
	seen := make(map[string]struct{}, len(c.Scan.Extensions))
	for _, ext := range c.Scan.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Scan.Extensions = exts

	patterns := make([]string, 0, len(c.Scan.Exclude))
	for _, pattern := range c.Scan.Exclude {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Scan.Exclude = patterns

	size, err := parseSize(c.Scan.MinFileSize)
	if err != nil {
		return fmt.Errorf("scan.min_file_size: %w", err)
	}
	c.Scan.MinFileSizeBytes = size
	if c.Scan.ReleaseDepth == 0 {
		c.Scan.ReleaseDepth = defaultReleaseDepth
	}
	return nil
}

func (c *Config) normalizeParity() error {
	c.Parity.Output = strings.ToLower(strings.TrimSpace(c.Parity.Output))
	if c.Parity.Output == "" {
		c.Parity.Output = defaultParityOutput
	}
	if strings.TrimSpace(c.Parity.MinSliceSize) == "" {
		c.Parity.MinSliceSize = defaultMinSliceSize
	}
	size, err := parseSize(c.Parity.MinSliceSize)
	if err != nil {
		return fmt.Errorf("parity.min_slice_size: %w", err)
	}
	c.Parity.MinSliceBytes = size
	if c.Parity.MaxSlices == 0 {
		c.Parity.MaxSlices = defaultMaxSlices
	}
	return nil
}

func (c *Config) normalizeServers() {
	password := ""
	if value, ok := os.LookupEnv("JUICENET_NNTP_PASSWORD"); ok {
		password = value
	} else if value, ok := os.LookupEnv("NYUU_PASSWORD"); ok {
		password = value
	}
	for i := range c.Servers {
		server := &c.Servers[i]
		server.Host = strings.TrimSpace(server.Host)
		server.Name = strings.TrimSpace(server.Name)
		if server.Name == "" {
			server.Name = server.Host
		}
		if server.Port == 0 {
			if server.TLS {
				server.Port = defaultNNTPPort
			} else {
				server.Port = 119
			}
		}
		if server.Connections == 0 {
			server.Connections = defaultServerConnections
		}
		if server.Password == "" && password != "" {
			server.Password = password
		}
	}
}

func (c *Config) normalizePosting() error {
	groups := make([]string, 0, len(c.Posting.Groups))
	for _, group := range c.Posting.Groups {
		if trimmed := strings.TrimSpace(group); trimmed != "" {
			groups = append(groups, trimmed)
		}
	}
	c.Posting.Groups = groups
	c.Posting.Obfuscation = strings.ToLower(strings.TrimSpace(c.Posting.Obfuscation))
	if c.Posting.Obfuscation == "" {
		c.Posting.Obfuscation = defaultObfuscation
	}
	if strings.TrimSpace(c.Posting.Subject) == "" {
		c.Posting.Subject = defaultSubject
	}
	if strings.TrimSpace(c.Posting.Poster) == "" {
		c.Posting.Poster = defaultPoster
	}
	if strings.TrimSpace(c.Posting.ArticleSize) == "" {
		c.Posting.ArticleSize = defaultArticleSize
	}
	size, err := parseSize(c.Posting.ArticleSize)
	if err != nil {
		return fmt.Errorf("posting.article_size: %w", err)
	}
	c.Posting.ArticleSizeBytes = size
	if c.Posting.DumpFailedPosts, err = expandPath(strings.TrimSpace(c.Posting.DumpFailedPosts)); err != nil {
		return fmt.Errorf("posting.dump_failed_posts: %w", err)
	}
	if c.Posting.NyuuConfig, err = expandPath(strings.TrimSpace(c.Posting.NyuuConfig)); err != nil {
		return fmt.Errorf("posting.nyuu_config: %w", err)
	}
	c.Posting.Scope = strings.ToLower(strings.TrimSpace(c.Posting.Scope))
	if c.Posting.Scope == "" {
		c.Posting.Scope = defaultScope
	}
	return nil
}

func (c *Config) normalizeVerification() {
	c.Verification.SampleMode = strings.ToLower(strings.TrimSpace(c.Verification.SampleMode))
	if c.Verification.SampleMode == "" {
		c.Verification.SampleMode = defaultSampleMode
	}
	if c.Verification.RequestTimeout <= 0 {
		c.Verification.RequestTimeout = defaultVerifyTimeout
	}
}

func (c *Config) normalizeArchive() {
	c.NZBArchive.Bucket = strings.TrimSpace(c.NZBArchive.Bucket)
	c.NZBArchive.Prefix = strings.Trim(strings.TrimSpace(c.NZBArchive.Prefix), "/")
	c.NZBArchive.Region = strings.TrimSpace(c.NZBArchive.Region)
	c.NZBArchive.Endpoint = strings.TrimSpace(c.NZBArchive.Endpoint)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func parseSize(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}
