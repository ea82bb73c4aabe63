package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"juicenet/internal/logging"
)

// CleanStaleResult lists the staging directories a cleanup removed and the
// ones it could not.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// DirInfo describes a top-level staging directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// CleanStale removes top-level staging directories last modified before
// maxAge ago.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	var result CleanStaleResult
	cutoff := time.Now().Add(-maxAge)
	for _, dir := range topLevel(stagingDir, &result) {
		if ctx.Err() != nil {
			break
		}
		if dir.ModTime.Before(cutoff) {
			result.remove(dir.Path, "removed stale staging directory", logger)
		}
	}
	return result
}

// CleanOrphaned removes staging directories that belong to no active release.
// IDs use forward slashes and may be nested ("Show/Season 1"); a directory
// that only contains active releases is descended into rather than removed.
func CleanOrphaned(ctx context.Context, stagingDir string, activeIDs map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	var result CleanStaleResult
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	ancestors := make(map[string]bool)
	for id := range activeIDs {
		for dir := path.Dir(id); dir != "." && dir != "/"; dir = path.Dir(dir) {
			ancestors[dir] = true
		}
	}

	pending := []string{""}
	for len(pending) > 0 && ctx.Err() == nil {
		rel := pending[0]
		pending = pending[1:]
		dir := filepath.Join(stagingDir, filepath.FromSlash(rel))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			}
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			id := path.Join(rel, entry.Name())
			switch _, active := activeIDs[id]; {
			case active:
			case ancestors[id]:
				pending = append(pending, id)
			default:
				result.remove(filepath.Join(dir, entry.Name()), "removed orphaned staging directory", logger)
			}
		}
	}
	return result
}

// ListDirectories returns the top-level staging directories with their total
// size. A missing staging directory yields no entries.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	var result CleanStaleResult
	dirs := topLevel(stagingDir, &result)
	if len(result.Errors) > 0 {
		return nil, result.Errors[0].Error
	}
	for i := range dirs {
		dirs[i].Size = treeSize(dirs[i].Path)
	}
	return dirs, nil
}

func topLevel(stagingDir string, result *CleanStaleResult) []DirInfo {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return nil
	}
	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		dirs = append(dirs, DirInfo{Name: entry.Name(), Path: dirPath, ModTime: info.ModTime()})
	}
	return dirs
}

func (r *CleanStaleResult) remove(dirPath, msg string, logger *slog.Logger) {
	if err := os.RemoveAll(dirPath); err != nil {
		r.Errors = append(r.Errors, CleanupError{Path: dirPath, Error: err})
		logging.WarnWithContext(logger, "failed to remove staging directory", "staging_cleanup_failed",
			logging.String("path", dirPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.staging_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	r.Removed = append(r.Removed, dirPath)
	if logger != nil {
		logger.Info(msg, logging.String("path", dirPath), logging.String(logging.FieldEventType, "staging_cleanup"))
	}
}

// treeSize sums regular file sizes below root, skipping unreadable entries.
func treeSize(root string) int64 {
	var size int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
