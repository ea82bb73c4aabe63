package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"juicenet/internal/config"
)

const userAgent = "juicenet/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventReleaseFailed Event = "release_failed"
	EventRunCompleted  Event = "run_completed"
	EventRawRepost     Event = "raw_repost"
	EventTest          Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventReleaseFailed: cfg.Notifications.ReleaseFailed,
			EventRunCompleted:  cfg.Notifications.RunComplete,
			EventRawRepost:     cfg.Notifications.ReleaseFailed,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventReleaseFailed:
		var b strings.Builder
		b.WriteString("❌ Failed: ")
		b.WriteString(payload.text("release"))
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" (")
			b.WriteString(stage)
			b.WriteString(")")
		}
		if reason := payload.text("error"); reason != "" {
			b.WriteString("\n")
			b.WriteString(reason)
		}
		return message{
			title:    "juicenet - Release Failed",
			body:     b.String(),
			tags:     []string{"juicenet", "release", "failed"},
			priority: "high",
		}, true
	case EventRunCompleted:
		completed := payload.count("completed")
		failed := payload.count("failed")
		duration := payload.duration("duration")
		if failed == 0 {
			return message{
				title: "juicenet - Run Complete",
				body:  fmt.Sprintf("✅ Posted %d release(s) in %s", completed, duration),
				tags:  []string{"juicenet", "run", "completed"},
			}, true
		}
		return message{
			title: "juicenet - Run Complete (with errors)",
			body:  fmt.Sprintf("Posted %d release(s), %d failed in %s", completed, failed, duration),
			tags:  []string{"juicenet", "run", "completed"},
		}, true
	case EventRawRepost:
		failed := payload.count("failed")
		if failed == 0 {
			return message{}, false
		}
		return message{
			title: "juicenet - Raw Repost",
			body:  fmt.Sprintf("%d of %d raw article(s) could not be reposted", failed, payload.count("total")),
			tags:  []string{"juicenet", "raw", "failed"},
		}, true
	case EventTest:
		return message{
			title:    "juicenet - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"juicenet", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func (p Payload) duration(key string) time.Duration {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
