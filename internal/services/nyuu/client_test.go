package nyuu_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"juicenet/internal/config"
	"juicenet/internal/services"
	"juicenet/internal/services/nyuu"
	"juicenet/internal/testsupport"
)

func newRequest(t *testing.T) nyuu.Request {
	t.Helper()
	dir := t.TempDir()
	return nyuu.Request{
		Files:       []string{"/media/MovieA/a.mkv", "/staging/MovieA/MovieA.par2"},
		NZBPath:     filepath.Join(dir, "nzb", "MovieA.nzb"),
		Server:      config.Server{Host: "news.example.com", Port: 563, TLS: true, Username: "user", Password: "secret"},
		Connections: 8,
		ArticleSize: 716800,
		Poster:      "poster <p@example>",
		Groups:      []string{"alt.binaries.test", "alt.binaries.misc"},
		Subject:     "{filename}",
		Dir:         dir,
	}
}

// writeNZB emits lines and writes the NZB named by the -o argument.
func writeNZB(code int, lines ...string) testsupport.ExecHandler {
	return func(_ context.Context, cmd services.Command, onLine func(services.Line)) (int, error) {
		for _, line := range lines {
			onLine(services.Line{Text: line, Stderr: true})
		}
		for i, arg := range cmd.Args {
			if arg == "-o" && i+1 < len(cmd.Args) {
				if err := os.WriteFile(cmd.Args[i+1], []byte("<nzb/>"), 0o644); err != nil {
					return 1, err
				}
			}
		}
		return code, nil
	}
}

func TestBuildArgs(t *testing.T) {
	req := newRequest(t)
	req.NZBPath = "/out/MovieA.nzb"
	req.ConfigFile = "/etc/nyuu.json"
	req.ObfuscateArticles = true
	req.DumpFailedPosts = "/raw"
	req.ExtraArgs = []string{"--check-connections", "1"}

	got := strings.Join(nyuu.BuildArgs(req), " ")
	want := "--config /etc/nyuu.json -h news.example.com -P 563 -S -u user -p secret -n 8 " +
		"-a 716800 -f poster <p@example> -g alt.binaries.test,alt.binaries.misc -s {filename} " +
		"--obfuscate-articles --dump-failed-posts /raw --progress log:1s -o /out/MovieA.nzb -O " +
		"--check-connections 1 -- /media/MovieA/a.mkv /staging/MovieA/MovieA.par2"
	if got != want {
		t.Fatalf("args = %q\nwant %q", got, want)
	}
}

func TestBuildRepostArgs(t *testing.T) {
	args := nyuu.BuildRepostArgs(nyuu.RepostRequest{
		Path:   "/raw/abc",
		Server: config.Server{Host: "news.example.com", IgnoreCert: true},
	})
	got := strings.Join(args, " ")
	want := "-h news.example.com --ignore-cert --delete-raw-posts --input-raw-posts /raw/abc"
	if got != want {
		t.Fatalf("args = %q\nwant %q", got, want)
	}
}

func TestRedactArgs(t *testing.T) {
	args := []string{"-u", "user", "-p", "secret", "--password", "other", "-p"}
	got := nyuu.RedactArgs(args)
	if strings.Contains(strings.Join(got, " "), "secret") || strings.Contains(strings.Join(got, " "), "other") {
		t.Fatalf("password leaked: %v", got)
	}
	if args[3] != "secret" {
		t.Fatal("RedactArgs modified its input")
	}
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line      string
		kind      nyuu.EventKind
		class     nyuu.ErrorClass
		messageID string
	}{
		{line: "[INF] Uploading 1520 article(s) from 3 file(s) totalling 1.02 GiB", kind: nyuu.EventTotal},
		{line: "Article posting progress: 120 read, 100 posted, 80 checked", kind: nyuu.EventProgress},
		{line: "[WRN] Post check: article <a1@nyuu> not found, will retry", kind: nyuu.EventWarning, messageID: "a1@nyuu"},
		{line: "[ERR] Failed to post article <b2@nyuu>: 441 Posting failed", kind: nyuu.EventError, class: nyuu.ErrorClassArticle, messageID: "b2@nyuu"},
		{line: "[ERR] Failed to post article <c3@nyuu>: connection reset", kind: nyuu.EventError, class: nyuu.ErrorClassArticle, messageID: "c3@nyuu"},
		{line: "[ERR] connect ECONNREFUSED 10.0.0.1:563", kind: nyuu.EventError, class: nyuu.ErrorClassConnection},
		{line: "[ERR] Authentication failed: 481 bad credentials", kind: nyuu.EventError, class: nyuu.ErrorClassConnection},
		{line: "[ERR] Unexpected internal state", kind: nyuu.EventError, class: nyuu.ErrorClassOther},
		{line: "[INF] Finished", kind: nyuu.EventLog},
	}
	for _, tc := range cases {
		event := nyuu.ParseLine(tc.line)
		if event.Kind != tc.kind || event.ErrorClass != tc.class || event.MessageID != tc.messageID {
			t.Errorf("ParseLine(%q) = %+v", tc.line, event)
		}
	}

	progress := nyuu.ParseLine("120 read, 100 posted, 80 checked")
	if progress.Read != 120 || progress.Posted != 100 || progress.Checked != 80 {
		t.Fatalf("unexpected progress counters %+v", progress)
	}
	if pct := progress.Percent(160); pct != 50 {
		t.Fatalf("percent = %v, want 50", pct)
	}
}

func TestPostSucceeds(t *testing.T) {
	exec := testsupport.NewStubExecutor(writeNZB(0,
		"[INF] Uploading 200 article(s)",
		"200 read, 100 posted",
		"200 read, 200 posted",
	))
	client, err := nyuu.New("nyuu", nyuu.WithExecutor(exec), nyuu.WithEnv("NODE_PATH=/opt/node_modules"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := newRequest(t)
	var progress []float64
	result, err := client.Post(context.Background(), req, func(e nyuu.Event) {
		if e.Kind == nyuu.EventProgress {
			progress = append(progress, e.Percent(200))
		}
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if result.TotalArticles != 200 || result.Posted != 200 || len(result.FailedSegments) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(progress) != 2 || progress[1] != 100 {
		t.Fatalf("unexpected progress %v", progress)
	}
	calls := exec.Calls()
	if len(calls) != 1 || calls[0].Dir != req.Dir || calls[0].Env[0] != "NODE_PATH=/opt/node_modules" {
		t.Fatalf("unexpected invocation %+v", calls)
	}
}

func TestPostExit32IsContentFailure(t *testing.T) {
	exec := testsupport.NewStubExecutor(writeNZB(nyuu.ExitArticlesFailed,
		"[INF] Uploading 10 article(s)",
		"[ERR] Failed to post article <x1@nyuu>: 441 Posting failed",
	))
	client, err := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := client.Post(context.Background(), newRequest(t), nil)
	if !errors.Is(err, services.ErrPost) || !errors.Is(err, services.ErrRejected) {
		t.Fatalf("expected rejected post error, got %v", err)
	}
	if errors.Is(err, services.ErrConnection) {
		t.Fatal("content failure classified as connection failure")
	}
	if result == nil || len(result.FailedSegments) != 1 || result.FailedSegments[0].MessageID != "x1@nyuu" {
		t.Fatalf("expected failed segment, got %+v", result)
	}
}

func TestPostFailedArticleWithCleanExitIsNotSuccess(t *testing.T) {
	exec := testsupport.NewStubExecutor(writeNZB(0, "[ERR] Article <y@nyuu> could not be posted"))
	client, _ := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	if _, err := client.Post(context.Background(), newRequest(t), nil); !errors.Is(err, services.ErrRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestPostConnectionFailure(t *testing.T) {
	exec := testsupport.NewStubExecutor(testsupport.EmitLines(1, "[ERR] connect ETIMEDOUT 10.0.0.1:563"))
	client, _ := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	_, err := client.Post(context.Background(), newRequest(t), nil)
	if !errors.Is(err, services.ErrPost) || !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection post error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ETIMEDOUT") {
		t.Fatalf("expected detail in error, got %v", err)
	}
}

func TestPostUnclassifiedFailureIsTransient(t *testing.T) {
	exec := testsupport.NewStubExecutor(testsupport.EmitLines(2, "[ERR] something odd"))
	client, _ := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	_, err := client.Post(context.Background(), newRequest(t), nil)
	if !errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrRejected) {
		t.Fatalf("expected transient post error, got %v", err)
	}
}

func TestPostMissingNZB(t *testing.T) {
	exec := testsupport.NewStubExecutor(testsupport.EmitLines(0, "[INF] done"))
	client, _ := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	_, err := client.Post(context.Background(), newRequest(t), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestPostPropagatesCancellation(t *testing.T) {
	exec := testsupport.NewStubExecutor(func(ctx context.Context, _ services.Command, _ func(services.Line)) (int, error) {
		return -1, ctx.Err()
	})
	client, _ := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Post(ctx, newRequest(t), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRepostRaw(t *testing.T) {
	exec := testsupport.NewStubExecutor(
		testsupport.EmitLines(0, "[INF] Finished"),
		testsupport.EmitLines(1, "[ERR] connect ECONNREFUSED"),
	)
	client, _ := nyuu.New("nyuu", nyuu.WithExecutor(exec))
	req := nyuu.RepostRequest{Path: "/raw/a", Server: config.Server{Host: "h"}}
	if err := client.RepostRaw(context.Background(), req); err != nil {
		t.Fatalf("RepostRaw: %v", err)
	}
	if err := client.RepostRaw(context.Background(), req); !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if err := client.RepostRaw(context.Background(), nyuu.RepostRequest{}); err == nil {
		t.Fatal("expected validation error")
	}
}
