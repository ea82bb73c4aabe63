package organizer

import (
	"path/filepath"
	"strings"

	"juicenet/internal/config"
	"juicenet/internal/scanner"
)

// CleanName replaces characters Nyuu cannot write in NZB names.
func CleanName(name string) string {
	return strings.ReplaceAll(name, "`", "'")
}

// Destination is the final NZB path:
// <nzb_dir>/<scope>/<root name>/<release path>.nzb.
func Destination(cfg *config.Config, release scanner.Release) string {
	rootName := filepath.Base(release.Root)
	rel := release.ID
	if prefix := rootName + "/"; len(cfg.Paths.MediaRoots) > 1 && strings.HasPrefix(rel, prefix) {
		rel = strings.TrimPrefix(rel, prefix)
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		parts[i] = CleanName(part)
	}
	parts[len(parts)-1] += ".nzb"
	return filepath.Join(append([]string{cfg.Paths.NZBDir, cfg.Posting.Scope, CleanName(rootName)}, parts...)...)
}

// ArchiveKey is the object key for an NZB under the archive prefix.
func ArchiveKey(prefix, nzbDir, finalPath string) string {
	rel, err := filepath.Rel(nzbDir, finalPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(finalPath)
	}
	key := filepath.ToSlash(rel)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
