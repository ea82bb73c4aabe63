package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"juicenet/internal/scanner"
)

// Enqueue inserts a pending record for a release, or refreshes the size and
// location metadata of an existing record that has not completed.
func (s *Store) Enqueue(ctx context.Context, release scanner.Release) (*Record, error) {
	if release.ID == "" {
		return nil, errors.New("release id is required")
	}
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(release.ID)
	defer unlock()

	now := timestamp()
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            release_id, source_root, source_dir, state, total_bytes, file_count,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(release_id) DO UPDATE SET
            source_root = excluded.source_root,
            source_dir = excluded.source_dir,
            total_bytes = excluded.total_bytes,
            file_count = excluded.file_count,
            updated_at = excluded.updated_at
        WHERE jobs.state != ?`,
		release.ID,
		nullableString(release.Root),
		nullableString(release.Dir),
		StatusPending,
		release.TotalBytes,
		len(release.Files),
		now,
		now,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", release.ID, err)
	}
	return s.Get(ctx, release.ID)
}

// Requeue returns a completed record to pending and drops its checkpoints so
// every stage runs again. Used for forced rescans only.
func (s *Store) Requeue(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, parity_attempts = 0, post_attempts = 0, verify_attempts = 0,
             failed_stage = NULL, last_error = NULL, nzb_path = NULL, parity_json = NULL,
             segments_total = 0, segments_failed = 0, progress_stage = NULL,
             progress_percent = 0, progress_message = NULL, completed_at = NULL, updated_at = ?
         WHERE release_id = ? AND state = ?`,
		StatusPending,
		timestamp(),
		id,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.missingOrConflict(ctx, id, StatusCompleted)
	}
	return nil
}

// Get fetches a record by release id. A missing record returns nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM jobs WHERE release_id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// Status returns the persisted state of a release.
func (s *Store) Status(ctx context.Context, id string) (Status, error) {
	var state string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT state FROM jobs WHERE release_id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("read state: %w", err)
	}
	return Status(state), nil
}

// IsCompleted reports whether a release finished posting.
func (s *Store) IsCompleted(ctx context.Context, id string) (bool, error) {
	status, err := s.Status(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == StatusCompleted, nil
}

// List returns records filtered by status set (or all records when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	baseQuery := `SELECT ` + recordColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, release_id`

	var (
		records []*Record
		err     error
	)
	if len(statuses) == 0 {
		records, err = s.queryRecords(ctx, baseQuery+orderClause)
	} else {
		query := baseQuery + ` WHERE state IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		records, err = s.queryRecords(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Transition moves a release from one state to a later one. The write only
// applies when the persisted state still equals from.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, from, to, id)
	}
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	now := timestamp()
	var completedAt any
	if to == StatusCompleted {
		completedAt = now
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, updated_at = ?, completed_at = COALESCE(?, completed_at),
             progress_stage = NULL, progress_percent = 0, progress_message = NULL
         WHERE release_id = ? AND state = ?`,
		to,
		now,
		completedAt,
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.missingOrConflict(ctx, id, from)
	}
	return nil
}

// RecordAttempt increments the attempt counter of a stage and returns the new value.
func (s *Store) RecordAttempt(ctx context.Context, id string, stage Stage) (int, error) {
	column, err := attemptColumn(stage)
	if err != nil {
		return 0, err
	}
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET `+column+` = `+column+` + 1, updated_at = ? WHERE release_id = ?`,
		timestamp(),
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT `+column+` FROM jobs WHERE release_id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, nil
}

// RecordError stores the latest error without changing state, for failures
// that will be retried.
func (s *Store) RecordError(ctx context.Context, id string, stage Stage, reason string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_error = ?, failed_stage = ?, updated_at = ? WHERE release_id = ?`,
		nullableString(reason),
		nullableString(string(stage)),
		timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// RecordFailure marks an active release failed at a stage.
func (s *Store) RecordFailure(ctx context.Context, id string, stage Stage, reason string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, failed_stage = ?, last_error = ?, progress_message = NULL, updated_at = ?
         WHERE release_id = ? AND state NOT IN (?, ?)`,
		StatusFailed,
		nullableString(string(stage)),
		nullableString(reason),
		timestamp(),
		id,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		status, statusErr := s.Status(ctx, id)
		if statusErr != nil {
			return statusErr
		}
		return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, id, status)
	}
	return nil
}

// SaveParity stores the parity checkpoint as JSON.
func (s *Store) SaveParity(ctx context.Context, id, parityJSON string) error {
	return s.updateColumns(ctx, id, `parity_json = ?`, nullableString(parityJSON))
}

// SavePostResult stores the NZB checkpoint and segment counts of a finished post.
func (s *Store) SavePostResult(ctx context.Context, id, nzbPath string, segmentsTotal, segmentsFailed int) error {
	return s.updateColumns(ctx, id, `nzb_path = ?, segments_total = ?, segments_failed = ?`,
		nullableString(nzbPath), segmentsTotal, segmentsFailed)
}

// SetNZBPath records where the finished NZB was placed.
func (s *Store) SetNZBPath(ctx context.Context, id, nzbPath string) error {
	return s.updateColumns(ctx, id, `nzb_path = ?`, nullableString(nzbPath))
}

// UpdateProgress persists the progress fields of a release.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, percent float64, message string) error {
	return s.updateColumns(ctx, id, `progress_stage = ?, progress_percent = ?, progress_message = ?`,
		nullableString(stage), percent, nullableString(message))
}

func (s *Store) updateColumns(ctx context.Context, id, assignments string, args ...any) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	args = append(args, timestamp(), id)
	res, err := s.execWithRetry(ctx, `UPDATE jobs SET `+assignments+`, updated_at = ? WHERE release_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
