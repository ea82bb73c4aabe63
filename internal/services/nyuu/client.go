package nyuu

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"juicenet/internal/services"
)

// FailedSegment describes one article Nyuu reported as not posted.
type FailedSegment struct {
	MessageID string
	Detail    string
}

// Result summarises a Nyuu upload.
type Result struct {
	NZBPath        string
	TotalArticles  int
	Posted         int
	Checked        int
	FailedSegments []FailedSegment
	Warnings       []string
	ExitCode       int
}

// Poster is the posting capability used by the posting stage.
type Poster interface {
	Post(ctx context.Context, req Request, onEvent func(Event)) (*Result, error)
	RepostRaw(ctx context.Context, req RepostRequest) error
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

// WithEnv adds environment entries to every Nyuu invocation, for example a
// NODE_PATH that lets Nyuu find the yEnc encoder module.
func WithEnv(env ...string) Option {
	return func(c *Client) {
		c.env = append(c.env, env...)
	}
}

// Client wraps Nyuu CLI interactions.
type Client struct {
	binary string
	exec   services.Executor
	env    []string
}

// New constructs a Nyuu client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("nyuu binary required")
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

// Post uploads the request's files and writes the NZB. A result is returned
// alongside content failures so callers can record the failed segments.
func (c *Client) Post(ctx context.Context, req Request, onEvent func(Event)) (*Result, error) {
	if len(req.Files) == 0 {
		return nil, services.Wrap(services.ErrPost, "post", "validate request", "no files to post", nil)
	}
	if strings.TrimSpace(req.NZBPath) == "" {
		return nil, services.Wrap(services.ErrPost, "post", "validate request", "nzb path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.NZBPath), 0o755); err != nil {
		return nil, services.Wrap(services.ErrPost, "post", "create nzb dir", "", err)
	}

	result := &Result{NZBPath: req.NZBPath}
	tracker := &outcome{}
	code, runErr := c.exec.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   BuildArgs(req),
		Dir:    req.Dir,
		Env:    c.env,
	}, func(line services.Line) {
		event := ParseLine(line.Text)
		tracker.observe(event, result)
		if onEvent != nil {
			onEvent(event)
		}
	})
	result.ExitCode = code
	if runErr != nil {
		return result, services.Wrap(services.ErrPost, "post", "run nyuu", "", runErr)
	}
	if err := tracker.verdict(code, "post"); err != nil {
		return result, err
	}
	if _, err := os.Stat(req.NZBPath); err != nil {
		return result, services.Mark(services.Wrap(services.ErrPost, "post", "read nzb", "nyuu exited cleanly without writing an NZB", err), services.ErrExternalTool)
	}
	return result, nil
}

// RepostRaw reposts a dumped raw article file. Nyuu deletes the file once it
// posted successfully.
func (c *Client) RepostRaw(ctx context.Context, req RepostRequest) error {
	if strings.TrimSpace(req.Path) == "" {
		return services.Wrap(services.ErrPost, "raw repost", "validate request", "article path required", nil)
	}
	tracker := &outcome{}
	result := &Result{}
	code, runErr := c.exec.Run(ctx, services.Command{
		Binary: c.binary,
		Args:   BuildRepostArgs(req),
		Env:    c.env,
	}, func(line services.Line) {
		tracker.observe(ParseLine(line.Text), result)
	})
	if runErr != nil {
		return services.Wrap(services.ErrPost, "raw repost", "run nyuu", "", runErr)
	}
	return tracker.verdict(code, "raw repost")
}

type outcome struct {
	connectionErrors []string
	articleErrors    []string
	otherErrors      []string
}

func (o *outcome) observe(event Event, result *Result) {
	switch event.Kind {
	case EventTotal:
		result.TotalArticles = event.Total
	case EventProgress:
		result.Posted = event.Posted
		result.Checked = event.Checked
		if event.Total > 0 && result.TotalArticles == 0 {
			result.TotalArticles = event.Total
		}
	case EventWarning:
		result.Warnings = append(result.Warnings, event.Text)
	case EventError:
		switch event.ErrorClass {
		case ErrorClassConnection:
			o.connectionErrors = append(o.connectionErrors, event.Text)
		case ErrorClassArticle:
			o.articleErrors = append(o.articleErrors, event.Text)
			result.FailedSegments = append(result.FailedSegments, FailedSegment{MessageID: event.MessageID, Detail: event.Text})
		default:
			o.otherErrors = append(o.otherErrors, event.Text)
		}
	}
}

// verdict maps the exit status and observed errors to an error class. Failed
// articles always win over a clean exit.
func (o *outcome) verdict(code int, stage string) error {
	switch {
	case len(o.articleErrors) > 0 || code == ExitArticlesFailed:
		msg := fmt.Sprintf("%d article(s) failed to post", len(o.articleErrors))
		if len(o.articleErrors) == 0 {
			msg = fmt.Sprintf("nyuu exit status %d: some articles failed to post", code)
		}
		return services.Mark(services.Wrap(services.ErrPost, stage, "post articles", msg, nil), services.ErrRejected)
	case code == 0:
		return nil
	case len(o.connectionErrors) > 0:
		msg := fmt.Sprintf("exit status %d: %s", code, last(o.connectionErrors))
		return services.Mark(services.Wrap(services.ErrPost, stage, "connect", msg, nil), services.ErrConnection)
	default:
		msg := fmt.Sprintf("exit status %d", code)
		if len(o.otherErrors) > 0 {
			msg += ": " + last(o.otherErrors)
		}
		return services.Mark(services.Wrap(services.ErrPost, stage, "run nyuu", msg, nil), services.ErrTransient)
	}
}

func last(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
