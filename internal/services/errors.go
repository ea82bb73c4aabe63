package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks fatal setup problems such as an unreadable media root.
	ErrConfiguration = errors.New("configuration error")
	// ErrScan marks a single unreadable entry during scanning.
	ErrScan = errors.New("scan error")
	// ErrParity marks recovery file generation failures.
	ErrParity = errors.New("parity error")
	// ErrPost marks poster failures. Combine with ErrConnection or ErrRejected.
	ErrPost = errors.New("post error")
	// ErrConnection marks failures reaching an NNTP server.
	ErrConnection = errors.New("connection failure")
	// ErrRejected marks articles the server refused.
	ErrRejected = errors.New("articles rejected")
	// ErrVerification marks NZB consistency or presence check failures.
	ErrVerification = errors.New("verification error")
	// ErrExternalTool marks a missing or misbehaving external binary.
	ErrExternalTool = errors.New("external tool error")
	// ErrTransient marks failures worth retrying that fit no other class.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Mark adds a second marker to an existing error so errors.Is matches both.
func Mark(err, marker error) error {
	if err == nil || marker == nil || errors.Is(err, marker) {
		return err
	}
	return &markedError{err: err, marker: marker}
}

type markedError struct {
	err    error
	marker error
}

func (e *markedError) Error() string { return e.err.Error() }

func (e *markedError) Unwrap() []error { return []error{e.err, e.marker} }

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
