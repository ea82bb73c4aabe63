package workflow

import (
	"time"

	"juicenet/internal/queue"
)

// Outcome is how a release ended within one run.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeParityOnly  Outcome = "parity_only"

	// OutcomeFailedEarlier marks a release left failed by a previous run.
	OutcomeFailedEarlier Outcome = "failed_earlier"
)

// ReleaseResult is the per-release entry of a Summary.
type ReleaseResult struct {
	ReleaseID string        `json:"release_id"`
	Outcome   Outcome       `json:"outcome"`
	State     queue.Status  `json:"state"`
	Stage     queue.Stage   `json:"failed_stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempt_count"`
	NZBPath   string        `json:"nzb_path,omitempty"`
	Bytes     int64         `json:"total_bytes"`
	Duration  time.Duration `json:"duration"`
}

// Summary reports a finished run.
type Summary struct {
	Releases      []ReleaseResult `json:"releases"`
	Completed     int             `json:"completed"`
	Failed        int             `json:"failed"`
	FailedEarlier int             `json:"failed_earlier"`
	Skipped       int             `json:"skipped"`
	Interrupted   int             `json:"interrupted"`
	ParityOnly    int             `json:"parity_only"`
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
	Stopped       bool            `json:"stopped"`
}

// ExitCode is 1 when any release ended failed, including releases left
// failed by an earlier run, 0 otherwise.
func (s Summary) ExitCode() int {
	if s.Failed+s.FailedEarlier > 0 {
		return 1
	}
	return 0
}

func (s *Summary) add(result ReleaseResult) {
	s.Releases = append(s.Releases, result)
	switch result.Outcome {
	case OutcomeCompleted:
		s.Completed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeInterrupted:
		s.Interrupted++
	case OutcomeParityOnly:
		s.ParityOnly++
	case OutcomeFailedEarlier:
		s.FailedEarlier++
	}
}
