package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes a header line per record followed by one indented line
// per field:
//
//	2026-03-01 10:00:00 INFO [workflow] Show/Season 1 (post) 42% - stage progress
//	    - Status: 1200/2900 articles
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []kv
	groups    []string
	addSource bool
}

type kv struct {
	key   string
	value slog.Value
}

// header holds the attributes lifted out of the field list into the first
// line.
type header struct {
	component string
	releaseID string
	stage     string
	percent   string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	fields := make([]kv, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendAttr(fields, h.groups, attr)
		return true
	})
	fields = lastValueWins(fields)

	var head header
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			head.component = attrString(f.value)
		case FieldReleaseID:
			head.releaseID = attrString(f.value)
		case FieldStage:
			head.stage = attrString(f.value)
		case FieldProgressPercent:
			head.percent = formatValueForKey(f.key, f.value)
		}
	}

	var buf bytes.Buffer
	h.writeHeader(&buf, record, head)
	shown, hidden := selectFields(fields, record.Level < slog.LevelInfo)
	for _, field := range shown {
		if field.label == displayLabel(FieldProgressPercent) && head.percent != "" {
			continue
		}
		buf.WriteString("    - " + field.label + ": " + field.value + "\n")
	}
	if hidden > 0 {
		buf.WriteString("    + " + strconv.Itoa(hidden) + " more field")
		if hidden != 1 {
			buf.WriteByte('s')
		}
		buf.WriteString(" hidden\n")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, record slog.Record, head header) {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(formatTimestamp(ts))
	buf.WriteString(" " + levelLabel(record.Level))
	if head.component != "" {
		buf.WriteString(" [" + head.component + "]")
	}
	if subject := composeSubject(head.releaseID, head.stage); subject != "" {
		buf.WriteString(" " + subject)
	}
	if head.percent != "" {
		buf.WriteString(" " + head.percent)
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	buf.WriteString(" - " + message)
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	buf.WriteByte('\n')
}

func composeSubject(releaseID, stage string) string {
	releaseID = strings.TrimSpace(releaseID)
	stage = strings.TrimSpace(stage)
	switch {
	case releaseID != "" && stage != "":
		return releaseID + " (" + stage + ")"
	case releaseID != "":
		return releaseID
	default:
		return stage
	}
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, attr := range attrs {
		clone.attrs = appendAttr(clone.attrs, clone.groups, attr)
	}
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	clone := *h
	clone.attrs = append([]kv(nil), h.attrs...)
	clone.groups = append([]string(nil), h.groups...)
	return &clone
}

// appendAttr flattens attr into dotted keys under groups.
func appendAttr(dst []kv, groups []string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			groups = append(append([]string(nil), groups...), attr.Key)
		}
		for _, member := range value.Group() {
			dst = appendAttr(dst, groups, member)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(append(append([]string(nil), groups...), key), ".")
	}
	return append(dst, kv{key: key, value: value})
}

// lastValueWins drops empty keys and keeps the latest value of repeated keys
// at the position of their first occurrence.
func lastValueWins(fields []kv) []kv {
	index := make(map[string]int, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, seen := index[f.key]; seen {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
