package nyuu

import (
	"regexp"
	"strconv"
	"strings"
)

// EventKind classifies a parsed output line.
type EventKind int

const (
	EventLog EventKind = iota
	EventTotal
	EventProgress
	EventWarning
	EventError
)

// ErrorClass separates connection trouble from rejected content.
type ErrorClass int

const (
	ErrorClassNone ErrorClass = iota
	ErrorClassConnection
	ErrorClassArticle
	ErrorClassOther
)

// Event is one interpreted line of Nyuu output.
type Event struct {
	Kind       EventKind
	Text       string
	Total      int
	Read       int
	Posted     int
	Checked    int
	ErrorClass ErrorClass
	MessageID  string
}

// Percent returns posting progress when the total is known.
func (e Event) Percent(total int) float64 {
	if total <= 0 {
		return 0
	}
	done := e.Posted
	if e.Checked > 0 {
		done = e.Checked
	}
	percent := float64(done) / float64(total) * 100
	if percent > 100 {
		return 100
	}
	return percent
}

var (
	totalPattern     = regexp.MustCompile(`(?i)uploading\s+(\d+)\s+article`)
	progressPattern  = regexp.MustCompile(`(?i)(\d+)\s+read,\s*(\d+)\s+posted(?:,\s*(\d+)\s+checked)?`)
	fractionPattern  = regexp.MustCompile(`(?i)posted:?\s+(\d+)\s*/\s*(\d+)`)
	messageIDPattern = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)
	levelPattern     = regexp.MustCompile(`^\s*\[(ERR|WRN|WARN|INF|DBG)\]\s*`)
)

var connectionMarkers = []string{
	"econnrefused", "etimedout", "enotfound", "eai_again", "econnreset", "ehostunreach", "enetunreach",
	"connection refused", "connection reset", "connection timed out", "timed out", "timeout",
	"getaddrinfo", "dns", "socket", "authentication", "auth failed", "481 ", "482 ", "502 ",
	"certificate", "tls", "ssl", "unable to connect", "connect failed", "disconnected",
}

var articleMarkers = []string{
	"441 ", "437 ", "rejected", "failed to post", "post failed", "article not found",
	"missing article", "post check", "could not be posted",
}

// ParseLine interprets one line of Nyuu output.
func ParseLine(line string) Event {
	text := strings.TrimSpace(line)
	event := Event{Kind: EventLog, Text: text}
	level := ""
	if match := levelPattern.FindStringSubmatch(text); match != nil {
		level = match[1]
	}

	if match := totalPattern.FindStringSubmatch(text); match != nil {
		event.Kind = EventTotal
		event.Total, _ = strconv.Atoi(match[1])
		return event
	}
	if match := progressPattern.FindStringSubmatch(text); match != nil {
		event.Kind = EventProgress
		event.Read, _ = strconv.Atoi(match[1])
		event.Posted, _ = strconv.Atoi(match[2])
		if match[3] != "" {
			event.Checked, _ = strconv.Atoi(match[3])
		}
		return event
	}
	if match := fractionPattern.FindStringSubmatch(text); match != nil && level != "ERR" {
		event.Kind = EventProgress
		event.Posted, _ = strconv.Atoi(match[1])
		event.Total, _ = strconv.Atoi(match[2])
		return event
	}

	if match := messageIDPattern.FindStringSubmatch(text); match != nil {
		event.MessageID = match[1]
	}
	switch level {
	case "ERR":
		event.Kind = EventError
		event.ErrorClass = classifyText(text, event.MessageID != "")
	case "WRN", "WARN":
		event.Kind = EventWarning
	}
	return event
}

// classifyText treats a line naming a specific article as a content failure
// even when the server gave a network-flavoured reason.
func classifyText(text string, namesArticle bool) ErrorClass {
	lower := strings.ToLower(text)
	article := containsAny(lower, articleMarkers)
	switch {
	case article && namesArticle:
		return ErrorClassArticle
	case containsAny(lower, connectionMarkers):
		return ErrorClassConnection
	case article:
		return ErrorClassArticle
	default:
		return ErrorClassOther
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
