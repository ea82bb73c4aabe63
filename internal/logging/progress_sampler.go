package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins out poster and parity progress so the log records a
// line per step of progress rather than one per output line.
type ProgressSampler struct {
	step  float64
	stage string
	next  float64
}

// NewProgressSampler logs at every multiple of step percent (default 5) and on
// every stage change.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether the update deserves a log line. A negative percent
// means the tool has not reported one yet. The message is not compared since
// Nyuu lines carry changing counters.
func (s *ProgressSampler) ShouldLog(percent float64, stage, _ string) bool {
	if s == nil {
		return true
	}
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.next = s.after(percent)
		return true
	}
	if percent < 0 || percent < s.next {
		return false
	}
	s.next = s.after(percent)
	return true
}

// Reset forgets the current stage, e.g. before a retry.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.stage = ""
	s.next = 0
}

// after returns the threshold following percent. 100% is final.
func (s *ProgressSampler) after(percent float64) float64 {
	switch {
	case percent < 0:
		return 0
	case percent >= 100:
		return math.Inf(1)
	}
	return (math.Floor(percent/s.step) + 1) * s.step
}
