package stage

import (
	"context"
	"log/slog"
)

// Progress receives completion updates from a running stage. Percent is in
// [0, 100], or negative when unknown.
type Progress func(percent float64, message string)

// Report calls p when it is set.
func (p Progress) Report(percent float64, message string) {
	if p != nil {
		p(percent, message)
	}
}

// LoggerAware stages accept a release-scoped logger before they run.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// HealthChecker is implemented by stages that can report readiness to the
// check command.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}
