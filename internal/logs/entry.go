package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"juicenet/internal/logging"
)

// Entry is one decoded line of the JSON log file.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	ReleaseID string
	Stage     string
	Fields    map[string]any
}

// Filter selects entries for display. Empty strings match everything; the
// zero MinLevel is info, so callers wanting debug entries set it explicitly.
type Filter struct {
	ReleaseID string
	MinLevel  slog.Level
	Stage     string
}

// Parse decodes a JSON log line. Lines that are not JSON objects are rejected.
func Parse(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("decode log line: %w", err)
	}
	entry := Entry{Fields: make(map[string]any, len(raw))}
	for key, value := range raw {
		switch key {
		case "ts", "time":
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "level":
			if s, ok := value.(string); ok {
				_ = entry.Level.UnmarshalText([]byte(s))
			}
		case "msg":
			entry.Message, _ = value.(string)
		case logging.FieldComponent:
			entry.Component, _ = value.(string)
		case logging.FieldReleaseID:
			entry.ReleaseID, _ = value.(string)
		case logging.FieldStage:
			entry.Stage, _ = value.(string)
		default:
			entry.Fields[key] = value
		}
	}
	return entry, nil
}

// Match reports whether e passes f.
func (f Filter) Match(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if f.ReleaseID != "" && e.ReleaseID != f.ReleaseID {
		return false
	}
	if f.Stage != "" && e.Stage != f.Stage {
		return false
	}
	return true
}

// Narrowing reports whether f can reject entries at debug level or above.
func (f Filter) Narrowing() bool {
	return f.ReleaseID != "" || f.Stage != "" || f.MinLevel > slog.LevelDebug
}

// Format renders e on one line in the console log layout.
func Format(e Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	b.WriteString(e.Level.String())
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	switch {
	case e.ReleaseID != "" && e.Stage != "":
		fmt.Fprintf(&b, " %s (%s)", e.ReleaseID, e.Stage)
	case e.ReleaseID != "":
		b.WriteString(" " + e.ReleaseID)
	case e.Stage != "":
		b.WriteString(" " + e.Stage)
	}
	b.WriteString(" - ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		if key == "source" || key == logging.FieldCorrelationID {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Fields[key])
	}
	return b.String()
}
