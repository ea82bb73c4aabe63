package queue

import (
	"context"
	"fmt"
)

// checkpointState is the SQL form of the rollback target: parity_in_progress
// when a parity artifact survives, pending otherwise.
const checkpointState = `CASE WHEN parity_json IS NOT NULL AND parity_json != '' THEN ? ELSE ? END`

// Rollback returns an interrupted release to its last durable checkpoint and
// reports the resulting state. Records that are not in flight are unchanged.
func (s *Store) Rollback(ctx context.Context, id string) (Status, error) {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	record, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !record.State.IsInFlight() {
		return record.State, nil
	}
	target := StatusPending
	if record.HasParity() {
		target = StatusParityInProgress
	}
	if target == record.State {
		return target, nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, progress_stage = NULL, progress_percent = 0, progress_message = NULL, updated_at = ?
         WHERE release_id = ? AND state = ?`,
		target,
		timestamp(),
		id,
		record.State,
	)
	if err != nil {
		return "", fmt.Errorf("rollback %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return "", s.missingOrConflict(ctx, id, record.State)
	}
	return target, nil
}

// ResetInFlight rolls back every in-flight record, typically at startup after
// an unclean exit.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = `+checkpointState+`,
             progress_stage = NULL, progress_percent = 0, progress_message = NULL, updated_at = ?
         WHERE state IN (?, ?)
            OR (state = ? AND (parity_json IS NULL OR parity_json = ''))`,
		StatusParityInProgress,
		StatusPending,
		timestamp(),
		StatusPosting,
		StatusVerifying,
		StatusParityInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight records: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed records back to pending. Only the attempt counter
// of the stage that failed is reset; checkpoints of earlier stages remain.
// With no ids every failed record is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	query := `UPDATE jobs
        SET state = ?,
            parity_attempts = CASE failed_stage WHEN ? THEN 0 ELSE parity_attempts END,
            post_attempts = CASE failed_stage WHEN ? THEN 0 ELSE post_attempts END,
            verify_attempts = CASE failed_stage WHEN ? THEN 0 ELSE verify_attempts END,
            failed_stage = NULL, last_error = NULL,
            progress_stage = NULL, progress_percent = 0, progress_message = 'Retry requested',
            updated_at = ?
        WHERE state = ?`
	args := []any{StatusPending, StageParity, StagePost, StageVerify, timestamp(), StatusFailed}

	if len(ids) > 0 {
		query += ` AND release_id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed records: %w", err)
	}
	return res.RowsAffected()
}
