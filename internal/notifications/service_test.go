package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"juicenet/internal/config"
	"juicenet/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventReleaseFailed, notifications.Payload{"release": "MovieA"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "release failed",
			event: notifications.EventReleaseFailed,
			payload: notifications.Payload{
				"release": "Show/Season 1",
				"stage":   "posting",
				"error":   errors.New("441 posting failed"),
			},
			expectTitle:    "juicenet - Release Failed",
			expectMessage:  "❌ Failed: Show/Season 1 (posting)\n441 posting failed",
			expectTags:     "juicenet,release,failed",
			expectPriority: "high",
		},
		{
			name:  "run completed",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"completed": 3,
				"failed":    0,
				"duration":  95*time.Second + 400*time.Millisecond,
			},
			expectTitle:   "juicenet - Run Complete",
			expectMessage: "✅ Posted 3 release(s) in 1m35s",
			expectTags:    "juicenet,run,completed",
		},
		{
			name:  "run completed with failures",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"completed": 2,
				"failed":    1,
				"duration":  time.Minute,
			},
			expectTitle:   "juicenet - Run Complete (with errors)",
			expectMessage: "Posted 2 release(s), 1 failed in 1m0s",
			expectTags:    "juicenet,run,completed",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "juicenet - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "juicenet,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.ReleaseFailed = true
			cfg.Notifications.RunComplete = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for disabled event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.ReleaseFailed = false
	cfg.Notifications.RunComplete = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventReleaseFailed, notifications.EventRunCompleted, "unknown"} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"release": "ignored"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}
