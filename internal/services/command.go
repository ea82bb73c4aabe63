package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Command describes one external process invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Line is a single line of process output.
type Line struct {
	Text   string
	Stderr bool
}

// Executor abstracts command execution for testability. Run returns the exit
// code once the process finished; a non-zero exit is not an error. The error is
// reserved for start failures, output read failures, and cancellation.
// onLine is never called concurrently.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(Line)) (int, error)
}

// ProcessExecutor runs commands with os/exec. On cancellation the process
// receives SIGTERM and is killed if it is still running after KillGrace.
type ProcessExecutor struct {
	KillGrace time.Duration
}

const maxLineBytes = 1 << 20

func (p ProcessExecutor) Run(ctx context.Context, spec Command, onLine func(Line)) (int, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = p.KillGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 10 * time.Second
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return -1, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
	)
	forward := func(line Line) {
		if onLine == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onLine(line)
	}
	scan := func(r *io.PipeReader, stderr bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		scanner.Split(scanOutputLines)
		for scanner.Scan() {
			if text := scanner.Text(); text != "" {
				forward(Line{Text: text, Stderr: stderr})
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
			// Keep draining so the process never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdoutR, false)
	go scan(stderrR, true)

	waitErr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return exitCode(cmd, waitErr), fmt.Errorf("%s interrupted: %w", spec.Binary, ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return -1, fmt.Errorf("wait %s: %w", spec.Binary, waitErr)
		}
	}
	if scanErr != nil {
		return exitCode(cmd, waitErr), fmt.Errorf("read %s output: %w", spec.Binary, scanErr)
	}
	return exitCode(cmd, waitErr), nil
}

// scanOutputLines splits on \n, \r\n, and bare \r so redrawn progress lines
// arrive one update at a time.
func scanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
