package verification

import (
	"fmt"
	"path/filepath"
	"sort"

	"juicenet/internal/nzb"
)

// ExpectedFile is one file the NZB must reference.
type ExpectedFile struct {
	Name string
	Size int64
	// Recovery files are checked for presence only.
	Recovery bool
}

// Expectation is what the NZB should describe.
type Expectation struct {
	Files            []ExpectedFile
	ReportedSegments int
	SizeTolerance    float64
}

// CheckConsistency returns every problem found; an empty slice means the NZB
// matches the expectation.
func CheckConsistency(doc *nzb.NZB, expect Expectation) []string {
	var problems []string
	if doc == nil || len(doc.Files) == 0 {
		return []string{"nzb lists no files"}
	}

	byName := make(map[string]nzb.File, len(doc.Files))
	for _, file := range doc.Files {
		name := file.Name()
		if _, dup := byName[name]; dup {
			problems = append(problems, fmt.Sprintf("%s: listed more than once", name))
			continue
		}
		byName[name] = file
		problems = append(problems, segmentProblems(name, file)...)
	}

	if expect.ReportedSegments > 0 && doc.TotalSegments() != expect.ReportedSegments {
		problems = append(problems, fmt.Sprintf("segment total %d does not match the %d articles posted", doc.TotalSegments(), expect.ReportedSegments))
	}

	for _, want := range expect.Files {
		name := filepath.Base(want.Name)
		file, ok := byName[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing from nzb", name))
			continue
		}
		if want.Recovery || want.Size <= 0 {
			continue
		}
		got := file.Bytes()
		limit := int64(float64(want.Size) * (1 + expect.SizeTolerance))
		switch {
		case got < want.Size:
			problems = append(problems, fmt.Sprintf("%s: segments hold %d bytes, file is %d", name, got, want.Size))
		case got > limit:
			problems = append(problems, fmt.Sprintf("%s: segments hold %d bytes, more than %.0f%% over the file size %d", name, got, expect.SizeTolerance*100, want.Size))
		}
	}
	return problems
}

func segmentProblems(name string, file nzb.File) []string {
	if len(file.Segments) == 0 {
		return []string{fmt.Sprintf("%s: no segments", name)}
	}
	var problems []string
	numbers := make([]int, 0, len(file.Segments))
	for _, seg := range file.Segments {
		numbers = append(numbers, seg.Number)
		if seg.MessageID == "" {
			problems = append(problems, fmt.Sprintf("%s: segment %d has no message-id", name, seg.Number))
		}
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			problems = append(problems, fmt.Sprintf("%s: segments not numbered 1..%d (found %d at position %d)", name, len(numbers), n, i+1))
			break
		}
	}
	return problems
}
