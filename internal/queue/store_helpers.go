package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordColumns = "release_id, source_root, source_dir, state, parity_attempts, post_attempts, verify_attempts, failed_stage, last_error, nzb_path, parity_json, total_bytes, file_count, segments_total, segments_failed, progress_stage, progress_percent, progress_message, created_at, updated_at, completed_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		releaseID       string
		sourceRoot      sql.NullString
		sourceDir       sql.NullString
		stateStr        string
		parityAttempts  int
		postAttempts    int
		verifyAttempts  int
		failedStage     sql.NullString
		lastError       sql.NullString
		nzbPath         sql.NullString
		parityJSON      sql.NullString
		totalBytes      int64
		fileCount       int
		segmentsTotal   int
		segmentsFailed  int
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&releaseID,
		&sourceRoot,
		&sourceDir,
		&stateStr,
		&parityAttempts,
		&postAttempts,
		&verifyAttempts,
		&failedStage,
		&lastError,
		&nzbPath,
		&parityJSON,
		&totalBytes,
		&fileCount,
		&segmentsTotal,
		&segmentsFailed,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ReleaseID:       releaseID,
		SourceRoot:      sourceRoot.String,
		SourceDir:       sourceDir.String,
		State:           Status(stateStr),
		ParityAttempts:  parityAttempts,
		PostAttempts:    postAttempts,
		VerifyAttempts:  verifyAttempts,
		FailedStage:     Stage(failedStage.String),
		LastError:       lastError.String,
		NZBPath:         nzbPath.String,
		ParityJSON:      parityJSON.String,
		TotalBytes:      totalBytes,
		FileCount:       fileCount,
		SegmentsTotal:   segmentsTotal,
		SegmentsFailed:  segmentsFailed,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	record.AttemptCount = max(parityAttempts, postAttempts, verifyAttempts)

	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			record.CompletedAt = &completed
		}
	}
	return record, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// missingOrConflict explains why a guarded update touched no rows.
func (s *Store) missingOrConflict(ctx context.Context, id string, expected Status) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM jobs WHERE release_id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	return fmt.Errorf("%w: %s expected %s, found %s", ErrConcurrency, id, expected, current)
}

func attemptColumn(stage Stage) (string, error) {
	switch stage {
	case StageParity:
		return "parity_attempts", nil
	case StagePost:
		return "post_attempts", nil
	case StageVerify:
		return "verify_attempts", nil
	default:
		return "", fmt.Errorf("unknown stage %q", stage)
	}
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
