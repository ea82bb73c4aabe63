package queue

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusPending          Status = "pending"
	StatusParityInProgress Status = "parity_in_progress"
	StatusPosting          Status = "posting"
	StatusVerifying        Status = "verifying"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// Stage names a retryable pipeline step with its own attempt counter.
type Stage string

const (
	StageParity Stage = "parity"
	StagePost   Stage = "post"
	StageVerify Stage = "verify"
)

// StopReason is recorded when a run ends before a release finished.
const StopReason = "Run stopped"

var allStatuses = []Status{
	StatusPending,
	StatusParityInProgress,
	StatusPosting,
	StatusVerifying,
	StatusCompleted,
	StatusFailed,
}

// forward order; failed sits outside the chain.
var statusRank = map[Status]int{
	StatusPending:          0,
	StatusParityInProgress: 1,
	StatusPosting:          2,
	StatusVerifying:        3,
	StatusCompleted:        4,
}

var inFlightStatuses = []Status{
	StatusParityInProgress,
	StatusPosting,
	StatusVerifying,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status ends a release's pipeline.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsInFlight reports whether a stage is currently working on the release.
func (s Status) IsInFlight() bool {
	for _, status := range inFlightStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether from → to is an allowed Transition. Forward
// moves may skip states; any non-terminal state may fail.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	return okFrom && okTo && toRank > fromRank
}

// StageForStatus maps an in-flight status to the stage working in it.
func StageForStatus(status Status) Stage {
	switch status {
	case StatusParityInProgress:
		return StageParity
	case StatusPosting:
		return StagePost
	case StatusVerifying:
		return StageVerify
	default:
		return ""
	}
}

// Record is the persisted job row for one release.
type Record struct {
	ReleaseID       string
	SourceRoot      string
	SourceDir       string
	State           Status
	AttemptCount    int
	ParityAttempts  int
	PostAttempts    int
	VerifyAttempts  int
	FailedStage     Stage
	LastError       string
	NZBPath         string
	ParityJSON      string
	TotalBytes      int64
	FileCount       int
	SegmentsTotal   int
	SegmentsFailed  int
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Attempts returns the attempt counter for a stage.
func (r *Record) Attempts(stage Stage) int {
	switch stage {
	case StageParity:
		return r.ParityAttempts
	case StagePost:
		return r.PostAttempts
	case StageVerify:
		return r.VerifyAttempts
	default:
		return 0
	}
}

// HasParity reports whether a parity checkpoint is recorded.
func (r *Record) HasParity() bool {
	return strings.TrimSpace(r.ParityJSON) != ""
}

// HasPost reports whether a finished post left an NZB checkpoint.
func (r *Record) HasPost() bool {
	return strings.TrimSpace(r.NZBPath) != ""
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}

// HealthSummary describes aggregated record counts per lifecycle group.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
