package logs_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"juicenet/internal/logs"
)

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "juicenet.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("offset = %d, want 6", offset)
	}

	all, _, err := logs.Last(path, 10)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(all) != 3 || all[0] != "a" {
		t.Fatalf("unexpected lines: %#v", all)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("got %v %d %v", lines, offset, err)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "juicenet.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
			select {
			case received <- struct{}{}:
			default:
			}
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not deliver the appended line")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected lines: %#v", got)
	}
}

func TestParseFilterAndFormat(t *testing.T) {
	line := `{"ts":"2026-03-01T10:00:00Z","level":"warn","msg":"stage retry","component":"workflow","release_id":"MovieA","stage":"post","attempt":2,"correlation_id":"abc"}`
	entry, err := logs.Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Level != slog.LevelWarn || entry.ReleaseID != "MovieA" || entry.Stage != "post" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if !(logs.Filter{ReleaseID: "MovieA", MinLevel: slog.LevelInfo}).Match(entry) {
		t.Fatal("expected filter to match")
	}
	if (logs.Filter{MinLevel: slog.LevelError}).Match(entry) {
		t.Fatal("expected level filter to reject warn entry")
	}
	if (logs.Filter{ReleaseID: "Other"}).Match(entry) {
		t.Fatal("expected release filter to reject entry")
	}

	out := logs.Format(entry)
	for _, fragment := range []string{"WARN [workflow] MovieA (post) - stage retry", "attempt=2"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in %q", fragment, out)
		}
	}
	if strings.Contains(out, "abc") {
		t.Fatalf("correlation id should be hidden: %q", out)
	}

	if _, err := logs.Parse("not json"); err == nil {
		t.Fatal("expected error for plain text line")
	}
}
