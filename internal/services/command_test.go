package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"juicenet/internal/services"
)

func TestProcessExecutorStreamsBothChannels(t *testing.T) {
	exec := services.ProcessExecutor{KillGrace: time.Second}
	var lines []services.Line
	code, err := exec.Run(context.Background(), services.Command{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo out1; echo err1 >&2; echo out2; exit 3"},
	}, func(line services.Line) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	var stdout, stderr []string
	for _, line := range lines {
		if line.Stderr {
			stderr = append(stderr, line.Text)
		} else {
			stdout = append(stdout, line.Text)
		}
	}
	if strings.Join(stdout, ",") != "out1,out2" {
		t.Fatalf("unexpected stdout lines %v", stdout)
	}
	if strings.Join(stderr, ",") != "err1" {
		t.Fatalf("unexpected stderr lines %v", stderr)
	}
}

func TestProcessExecutorMissingBinary(t *testing.T) {
	exec := services.ProcessExecutor{}
	if _, err := exec.Run(context.Background(), services.Command{Binary: "/nonexistent/juicenet-tool"}, nil); err == nil {
		t.Fatal("expected start error")
	}
}

func TestProcessExecutorCancellationTerminates(t *testing.T) {
	exec := services.ProcessExecutor{KillGrace: 500 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := exec.Run(ctx, services.Command{
			Binary: "/bin/sh",
			Args:   []string{"-c", "echo ready; sleep 30"},
		}, func(line services.Line) {
			if line.Text == "ready" {
				close(started)
			}
		})
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not start")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process was not terminated")
	}
}
