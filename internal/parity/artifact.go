package parity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Artifact is the durable record of a generated recovery set.
type Artifact struct {
	OutputDir        string   `json:"output_dir"`
	IndexFile        string   `json:"index_file"`
	Files            []string `json:"files"`
	SliceSize        int64    `json:"slice_size"`
	SourceBlocks     int64    `json:"source_blocks"`
	RecoveryBlocks   int      `json:"recovery_blocks"`
	RequestedPercent int      `json:"requested_percent"`
	AchievedPercent  float64  `json:"achieved_percent"`
	// InSource is true when the files were written next to the source files.
	InSource bool `json:"in_source"`
}

// RecoveryBytes is the recovery data size implied by blocks and slice size.
func (a *Artifact) RecoveryBytes() int64 {
	if a == nil {
		return 0
	}
	return int64(a.RecoveryBlocks) * a.SliceSize
}

// Marshal encodes the artifact for the job store.
func (a *Artifact) Marshal() (string, error) {
	if a == nil {
		return "", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal parity artifact: %w", err)
	}
	return string(data), nil
}

// ParseArtifact decodes a stored artifact. Empty input yields nil.
func ParseArtifact(raw string) (*Artifact, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var artifact Artifact
	if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
		return nil, fmt.Errorf("parse parity artifact: %w", err)
	}
	return &artifact, nil
}

// Exists reports whether every recorded file is still on disk.
func (a *Artifact) Exists() bool {
	if a == nil || len(a.Files) == 0 {
		return false
	}
	for _, path := range a.Files {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// Remove deletes the recovery files, and the staging directory when it is
// left empty. Missing files are ignored.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	for _, path := range a.Files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	if !a.InSource && a.OutputDir != "" {
		_ = os.Remove(a.OutputDir)
	}
	return nil
}
