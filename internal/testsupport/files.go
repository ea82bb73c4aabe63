package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of filler, creating parent
// directories. Sizes below one byte write a single byte so the file is never
// skipped as empty by the scanner.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	f := create(t, path)
	defer f.Close()

	chunk := bytes.Repeat([]byte("juicenet"), 4096)
	for remaining := max(size, 1); remaining > 0; {
		n := min(remaining, int64(len(chunk)))
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= n
	}
}

// WriteSparseFile creates path with the given logical size and no data
// blocks, for multi-gigabyte release fixtures.
func WriteSparseFile(t testing.TB, path string, size int64) {
	t.Helper()
	f := create(t, path)
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate %s: %v", path, err)
	}
}

func create(t testing.TB, path string) *os.File {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}
