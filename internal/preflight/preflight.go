package preflight

import (
	"context"
	"fmt"
	"strings"

	"juicenet/internal/config"
	"juicenet/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects which checks RunAll performs.
type Options struct {
	// SkipServers omits the NNTP connectivity checks.
	SkipServers bool
	// SkipPoster omits Nyuu and its encoder (parity-only runs).
	SkipPoster bool
	// SkipParity omits ParPar (post-only runs or redundancy 0).
	SkipParity bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, root := range cfg.Paths.MediaRoots {
		results = append(results, CheckDirectoryReadable("Media root", root))
	}
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("NZB directory", cfg.Paths.NZBDir))
	if cfg.Parity.Output == config.ParityOutputStaging {
		results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	}

	for _, status := range CheckSystemDeps(cfg, opts) {
		detail := status.Detail
		if status.Available {
			detail = status.Path
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: detail})
	}

	if !opts.SkipServers && !opts.SkipPoster {
		timeout := cfg.VerifyTimeout()
		for _, server := range cfg.Servers {
			results = append(results, CheckServer(ctx, server, timeout))
		}
	}
	return results
}

// Failed converts failing results into one configuration error.
func Failed(results []Result) error {
	var failures []string
	for _, result := range results {
		if !result.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", strings.Join(failures, "; "), nil)
}
