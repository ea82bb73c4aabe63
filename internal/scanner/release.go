package scanner

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SourceFile is one postable file in a release.
type SourceFile struct {
	Path string
	// Name is the path relative to the release directory.
	Name string
	Size int64
}

// Release is a group of files posted together under one NZB.
type Release struct {
	ID            string
	Root          string
	Dir           string
	Files         []SourceFile
	TotalBytes    int64
	ParityPercent int
	// Single is true when the release is one file above the release depth.
	Single bool
}

// Paths returns the absolute paths of every source file in order.
func (r Release) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for _, file := range r.Files {
		paths = append(paths, file.Path)
	}
	return paths
}

// Name is the last element of the release identifier.
func (r Release) Name() string {
	id := strings.TrimSuffix(r.ID, "/")
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

func releaseID(rootPrefix, rel string) string {
	id := norm.NFC.String(filepath.ToSlash(rel))
	if rootPrefix == "" {
		return id
	}
	return norm.NFC.String(rootPrefix) + "/" + id
}
