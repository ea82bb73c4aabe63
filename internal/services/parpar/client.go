package parpar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"juicenet/internal/services"
)

// ProgressUpdate captures ParPar progress output.
type ProgressUpdate struct {
	Phase   string
	Percent float64
}

// Request describes one parity generation run.
type Request struct {
	Files     []string
	OutputDir string
	// BaseName is the recovery set name; outputs are BaseName.par2 and
	// BaseName.volS+N.par2.
	BaseName   string
	Redundancy int
	SliceSize  int64
	// PreservePaths stores paths relative to the common parent instead of
	// bare file names, for releases with nested directories.
	PreservePaths bool
	ExtraArgs     []string
}

// Result lists what a successful run produced.
type Result struct {
	IndexFile      string
	Volumes        []string
	RecoveryBlocks int
	ExitCode       int
}

// Files returns the index file followed by every recovery volume.
func (r *Result) Files() []string {
	files := make([]string, 0, len(r.Volumes)+1)
	if r.IndexFile != "" {
		files = append(files, r.IndexFile)
	}
	return append(files, r.Volumes...)
}

// Generator is the parity capability used by the parity stage.
type Generator interface {
	Generate(ctx context.Context, req Request, progress func(ProgressUpdate)) (*Result, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ParPar CLI interactions.
type Client struct {
	binary string
	exec   services.Executor
}

// New constructs a ParPar client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("parpar binary required")
	}
	client := &Client{
		binary: binary,
		exec:   services.ProcessExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Generate runs ParPar and collects the recovery files it wrote.
func (c *Client) Generate(ctx context.Context, req Request, progress func(ProgressUpdate)) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, services.Wrap(services.ErrParity, "parity", "validate request", "", err)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrParity, "parity", "create output dir", req.OutputDir, err)
	}
	removeOutputs(req.OutputDir, req.BaseName)

	var lastErrLine string
	code, runErr := c.exec.Run(ctx, services.Command{Binary: c.binary, Args: BuildArgs(req), Dir: req.OutputDir}, func(line services.Line) {
		if update, ok := parseProgress(line.Text); ok {
			if progress != nil {
				progress(update)
			}
			return
		}
		if line.Stderr {
			lastErrLine = strings.TrimSpace(line.Text)
		}
	})
	if runErr != nil {
		removeOutputs(req.OutputDir, req.BaseName)
		return nil, services.Wrap(services.ErrParity, "parity", "run parpar", "", runErr)
	}
	if code != 0 {
		removeOutputs(req.OutputDir, req.BaseName)
		msg := fmt.Sprintf("exit status %d", code)
		if lastErrLine != "" {
			msg += ": " + lastErrLine
		}
		return nil, services.Wrap(services.ErrParity, "parity", "run parpar", msg, nil)
	}

	result, err := collectOutputs(req.OutputDir, req.BaseName)
	if err != nil {
		removeOutputs(req.OutputDir, req.BaseName)
		return nil, services.Wrap(services.ErrParity, "parity", "collect outputs", "", err)
	}
	result.ExitCode = code
	if req.Redundancy > 0 && result.RecoveryBlocks == 0 {
		removeOutputs(req.OutputDir, req.BaseName)
		return nil, services.Wrap(services.ErrParity, "parity", "collect outputs", "parpar produced no recovery blocks", nil)
	}
	return result, nil
}

// BuildArgs returns the ParPar arguments for a request.
func BuildArgs(req Request) []string {
	pathFormat := "basename"
	if req.PreservePaths {
		pathFormat = "common"
	}
	args := []string{
		"-s", strconv.FormatInt(req.SliceSize, 10) + "b",
		"-r", strconv.Itoa(req.Redundancy) + "%",
		"-f", pathFormat,
		"-O",
		"-o", filepath.Join(req.OutputDir, req.BaseName+".par2"),
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, "--")
	return append(args, req.Files...)
}

func (r Request) validate() error {
	switch {
	case len(r.Files) == 0:
		return errors.New("no input files")
	case strings.TrimSpace(r.OutputDir) == "":
		return errors.New("output directory required")
	case strings.TrimSpace(r.BaseName) == "":
		return errors.New("base name required")
	case r.SliceSize <= 0:
		return errors.New("slice size must be positive")
	case r.Redundancy < 0:
		return errors.New("redundancy must not be negative")
	}
	return nil
}

var volumePattern = regexp.MustCompile(`(?i)\.vol(\d+)\+(\d+)\.par2$`)

// VolumeBlocks returns the recovery block count encoded in a volume file name.
func VolumeBlocks(name string) (int, bool) {
	match := volumePattern.FindStringSubmatch(name)
	if match == nil {
		return 0, false
	}
	count, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, false
	}
	return count, true
}

func collectOutputs(dir, base string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !belongsToSet(name, base) {
			continue
		}
		path := filepath.Join(dir, name)
		if blocks, ok := VolumeBlocks(name); ok {
			result.Volumes = append(result.Volumes, path)
			result.RecoveryBlocks += blocks
			continue
		}
		if strings.EqualFold(name, base+".par2") {
			result.IndexFile = path
		}
	}
	if result.IndexFile == "" {
		return nil, fmt.Errorf("index file %s.par2 not found in %s", base, dir)
	}
	slices.Sort(result.Volumes)
	return result, nil
}

// belongsToSet matches BaseName.par2 and BaseName.volS+N.par2 only, so other
// recovery sets in a shared directory are left alone.
func belongsToSet(name, base string) bool {
	lower := strings.ToLower(name)
	base = strings.ToLower(base)
	if lower == base+".par2" {
		return true
	}
	rest, ok := strings.CutPrefix(lower, base)
	if !ok {
		return false
	}
	loc := volumePattern.FindStringIndex(rest)
	return loc != nil && loc[0] == 0
}

func removeOutputs(dir, base string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && belongsToSet(entry.Name(), base) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

var progressPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z ]*?)\s*:?\s+(\d+(?:\.\d+)?)\s*%`)

func parseProgress(line string) (ProgressUpdate, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return ProgressUpdate{}, false
	}
	percent, err := strconv.ParseFloat(match[2], 64)
	if err != nil || percent > 100 {
		return ProgressUpdate{}, false
	}
	return ProgressUpdate{Phase: strings.TrimSpace(match[1]), Percent: percent}, true
}
