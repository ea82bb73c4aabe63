package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version. There are no migrations:
// a database from another version has to be removed and rebuilt by a rescan.
const schemaVersion = 1

// ErrSchemaMismatch means the database was written by a different schema
// version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// expectedColumns backs the missing-column report of CheckHealth.
var expectedColumns = []string{
	"release_id", "source_root", "source_dir", "state",
	"parity_attempts", "post_attempts", "verify_attempts",
	"failed_stage", "last_error", "nzb_path", "parity_json",
	"total_bytes", "file_count", "segments_total", "segments_failed",
	"progress_stage", "progress_percent", "progress_message",
	"created_at", "updated_at", "completed_at",
}

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
		return s.createSchema(ctx)
	default:
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
