package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"juicenet/internal/preflight"
	"juicenet/internal/stage"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

// statusStyles maps each kind to its bracket label and ANSI color.
var statusStyles = map[statusKind]struct{ label, color string }{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

// renderStatusLine renders "  Label:   [KIND] message" with the label column
// padded to statusLabelWidth.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	status := "[" + style.label + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	if colorize && style.color != "" {
		line = style.color + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if colorize {
		color := statusStyles[statusInfo].color
		return []string{color + line + ansiReset, color + rule + ansiReset}
	}
	return []string{line, rule}
}

// checkLines renders preflight results after a one-line summary.
func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 1, len(results)+1)
	failed := 0
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
			failed++
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	if failed > 0 {
		lines[0] = renderStatusLine("Summary", statusError, fmt.Sprintf("%d of %d checks failed", failed, len(results)), colorize)
	} else {
		lines[0] = renderStatusLine("Summary", statusOK, fmt.Sprintf("%d checks passed", len(results)), colorize)
	}
	return lines
}

func healthLines(health []stage.Health, colorize bool) []string {
	lines := make([]string, 0, len(health))
	for _, h := range health {
		kind, detail := statusOK, "Ready"
		if !h.Ready {
			kind, detail = statusError, h.Detail
		}
		lines = append(lines, renderStatusLine(h.Name, kind, detail, colorize))
	}
	return lines
}

// shouldColorize reports whether writer is a terminal and NO_COLOR is unset.
func shouldColorize(writer io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	file, ok := writer.(*os.File)
	return ok && isTerminal(file)
}

func isTerminal(file *os.File) bool {
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
