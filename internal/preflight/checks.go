package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"juicenet/internal/config"
	"juicenet/internal/deps"
	"juicenet/internal/services/nntp"
)

// CheckServer verifies that an NNTP server accepts a connection and the
// configured credentials.
func CheckServer(ctx context.Context, server config.Server, timeout time.Duration) Result {
	name := "Server " + server.Name
	if server.Name == "" {
		name = "Server " + server.Host
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := nntp.Dial(checkCtx, server, timeout)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(server, err)}
	}
	_ = conn.Close()
	detail := fmt.Sprintf("%s (reachable", server.Address())
	if server.Username != "" {
		detail += ", authenticated"
	}
	return Result{Name: name, Passed: true, Detail: detail + ")"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckSystemDeps evaluates the external tools a run needs. Both the run
// command and "juicenet check" use it.
func CheckSystemDeps(cfg *config.Config, opts Options) []deps.Status {
	var requirements []deps.Requirement
	if !opts.SkipParity && cfg.Parity.Redundancy > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "ParPar",
			Command:     cfg.Tools.ParPar,
			Description: "Required for recovery files",
		})
	}
	if !opts.SkipPoster {
		requirements = append(requirements,
			deps.Requirement{
				Name:        "Nyuu",
				Command:     cfg.Tools.Nyuu,
				Description: "Required for posting",
			},
			deps.Requirement{
				Name:        "Node.js",
				Command:     cfg.Tools.Node,
				Description: "Runs Nyuu and ParPar",
				Optional:    true,
			},
		)
	}
	statuses := deps.CheckBinaries(requirements)
	if !opts.SkipPoster {
		statuses = append(statuses, deps.CheckNodeModule(cfg.Tools.EncoderModule, cfg.Tools.Nyuu, cfg.Tools.NodePath))
	}
	return statuses
}

func summarizeDialError(server config.Server, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s (error: timed out)", server.Address())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s (error: timed out)", server.Address())
	}
	return fmt.Sprintf("%s (error: %v)", server.Address(), err)
}
