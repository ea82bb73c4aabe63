package queue

import "errors"

var (
	// ErrConcurrency reports a guarded write whose expected state no longer
	// matched the persisted one. It always indicates a tracker race.
	ErrConcurrency = errors.New("job state changed concurrently")
	// ErrInvalidTransition reports a backward or otherwise disallowed move.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotFound reports a release without a job record.
	ErrNotFound = errors.New("job record not found")
)
