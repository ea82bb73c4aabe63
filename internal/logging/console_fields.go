package logging

import (
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

type infoField struct {
	label string
	value string
}

// Keys shown first, in this order, on info-level console lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldProgressPercent,
	FieldProgressMessage,
	"error",
	FieldErrorHint,
	FieldImpact,
	"attempt",
	"max_attempts",
	"backoff",
	"files",
	"total_bytes",
	"redundancy_percent",
	"segments",
	"failed_segments",
	"nzb",
	"exit_code",
	"stage_duration",
}

// selectFields formats attributes for the console. Debug records show every
// field; info and above hide internal keys and long values.
func selectFields(attrs []kv, debug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0

	emit := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipConsoleKey(attr.key) {
			return
		}
		value := formatValueForKey(attr.key, attr.value)
		if !debug && (isDebugOnlyKey(attr.key) || len(value) > 160) {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: value})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				emit(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			emit(idx)
		}
	}
	return result, hidden
}

func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	switch {
	case isByteSizeKey(key) && v.Kind() == slog.KindInt64 && v.Int64() >= 0:
		return humanize.IBytes(uint64(v.Int64()))
	case isByteSizeKey(key) && v.Kind() == slog.KindUint64:
		return humanize.IBytes(v.Uint64())
	case isPercentKey(key) && v.Kind() == slog.KindFloat64:
		return humanize.FtoaWithDigits(v.Float64(), 1) + "%"
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" && len(value) > 200 {
		value = value[:200] + "..."
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") || key == "size"
}

func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent")
}

func skipConsoleKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldReleaseID, FieldStage:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "command", "args", "source_path", "output_dir":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldProgressPercent:
		return "Progress"
	case FieldProgressMessage:
		return "Status"
	case "nzb":
		return "NZB"
	case "stage_duration":
		return "Duration"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
