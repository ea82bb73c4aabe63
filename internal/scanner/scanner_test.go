package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"juicenet/internal/scanner"
	"juicenet/internal/services"
	"juicenet/internal/testsupport"
)

type completedSet map[string]bool

func (c completedSet) IsCompleted(_ context.Context, id string) (bool, error) {
	return c[id], nil
}

func releaseIDs(releases []scanner.Release) []string {
	ids := make([]string, 0, len(releases))
	for _, r := range releases {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestScannerSkipsReleasesBelowMinimumSize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MediaRoot(cfg)
	const gib = int64(1) << 30
	testsupport.WriteSparseFile(t, filepath.Join(root, "MovieA", "part1.mkv"), 3*gib)
	testsupport.WriteSparseFile(t, filepath.Join(root, "MovieA", "part2.mkv"), 3*gib)
	testsupport.WriteSparseFile(t, filepath.Join(root, "MovieA", "part3.mkv"), 3*gib)
	testsupport.WriteFile(t, filepath.Join(root, "MovieB", "tiny.mkv"), 1024)

	releases, err := scanner.New(cfg, nil, nil).Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(releases) != 1 || releases[0].ID != "MovieA" {
		t.Fatalf("expected only MovieA, got %v", releaseIDs(releases))
	}
	release := releases[0]
	if len(release.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(release.Files))
	}
	if release.TotalBytes != 9*gib {
		t.Fatalf("expected 9 GiB total, got %d", release.TotalBytes)
	}
	if release.Files[0].Name != "part1.mkv" || release.Files[2].Name != "part3.mkv" {
		t.Fatalf("files not in path order: %+v", release.Files)
	}
	if release.ParityPercent != cfg.Parity.Redundancy {
		t.Fatalf("parity percent = %d, want %d", release.ParityPercent, cfg.Parity.Redundancy)
	}
}

func TestScannerIsOrderStableAndIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MediaRoot(cfg)
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		testsupport.WriteFile(t, filepath.Join(root, name, "file.bin"), 2<<20)
	}
	testsupport.WriteFile(t, filepath.Join(root, "loose.mkv"), 2<<20)

	s := scanner.New(cfg, nil, nil)
	first, err := s.Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	second, err := s.Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{"Alpha", "Mid", "Zeta", "loose.mkv"}
	for _, got := range [][]string{releaseIDs(first), releaseIDs(second)} {
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	}
	if !first[3].Single {
		t.Fatal("expected loose file to form a single-file release")
	}
}

func TestScannerAppliesRules(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scan.Extensions = []string{".mkv"}
	cfg.Scan.Exclude = []string{"*sample*", "Extras"}
	cfg.Scan.MaxDepth = 2
	root := testsupport.MediaRoot(cfg)
	dir := filepath.Join(root, "Show")
	testsupport.WriteFile(t, filepath.Join(dir, "e01.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(dir, "e01.nfo"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(dir, "show-sample.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(dir, "show.vol00+01.par2"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(dir, "Extras", "bonus.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(dir, "Disc2", "e02.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(dir, "Disc2", "Deep", "e03.mkv"), 2<<20)

	releases, err := scanner.New(cfg, nil, nil).Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("expected one release, got %v", releaseIDs(releases))
	}
	var names []string
	for _, f := range releases[0].Files {
		names = append(names, f.Name)
	}
	want := []string{"Disc2/e02.mkv", "e01.mkv"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("files = %v, want %v", names, want)
	}
}

func TestScannerReleaseDepth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scan.ReleaseDepth = 2
	root := testsupport.MediaRoot(cfg)
	testsupport.WriteFile(t, filepath.Join(root, "Show", "Season 1", "e01.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(root, "Show", "Season 2", "e01.mkv"), 2<<20)

	releases, err := scanner.New(cfg, nil, nil).Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	ids := releaseIDs(releases)
	if len(ids) != 2 || ids[0] != "Show/Season 1" || ids[1] != "Show/Season 2" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if releases[0].Name() != "Season 1" {
		t.Fatalf("Name() = %q", releases[0].Name())
	}
}

func TestScannerPrefixesIDsWithRootForMultipleRoots(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaRoots("movies", "tv"))
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MediaRoots[0], "Film", "a.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MediaRoots[1], "Series", "b.mkv"), 2<<20)

	releases, err := scanner.New(cfg, nil, nil).Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	ids := releaseIDs(releases)
	if len(ids) != 2 || ids[0] != "movies/Film" || ids[1] != "tv/Series" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestScannerNormalizesIDsToNFC(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	decomposed := "Cafe\u0301"
	testsupport.WriteFile(t, filepath.Join(testsupport.MediaRoot(cfg), decomposed, "a.mkv"), 2<<20)

	releases, err := scanner.New(cfg, nil, nil).Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(releases) != 1 || releases[0].ID != "Caf\u00e9" {
		t.Fatalf("expected NFC id, got %q", releaseIDs(releases))
	}
}

func TestScannerSkipsCompletedUnlessForced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MediaRoot(cfg)
	testsupport.WriteFile(t, filepath.Join(root, "Done", "a.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(root, "Todo", "a.mkv"), 2<<20)

	s := scanner.New(cfg, completedSet{"Done": true}, nil)
	releases, err := s.Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if ids := releaseIDs(releases); len(ids) != 1 || ids[0] != "Todo" {
		t.Fatalf("expected only Todo, got %v", ids)
	}

	forced, err := s.Collect(context.Background(), scanner.Options{Force: true})
	if err != nil {
		t.Fatalf("Collect forced: %v", err)
	}
	if len(forced) != 2 {
		t.Fatalf("expected both releases when forced, got %v", releaseIDs(forced))
	}
}

func TestScannerUnreadableRootIsConfigError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.MediaRoots = []string{filepath.Join(testsupport.BaseDir(cfg), "missing")}

	_, err := scanner.New(cfg, nil, nil).Releases(context.Background(), scanner.Options{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestScannerSkipsUnreadableSubdirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root")
	}
	cfg := testsupport.NewConfig(t)
	root := testsupport.MediaRoot(cfg)
	testsupport.WriteFile(t, filepath.Join(root, "Good", "a.mkv"), 2<<20)
	locked := filepath.Join(root, "Locked")
	testsupport.WriteFile(t, filepath.Join(locked, "a.mkv"), 2<<20)
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	releases, err := scanner.New(cfg, nil, nil).Collect(context.Background(), scanner.Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if ids := releaseIDs(releases); len(ids) != 1 || ids[0] != "Good" {
		t.Fatalf("expected only Good, got %v", ids)
	}
}

func TestScannerStopsOnCancelledContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MediaRoot(cfg)
	testsupport.WriteFile(t, filepath.Join(root, "A", "a.mkv"), 2<<20)
	testsupport.WriteFile(t, filepath.Join(root, "B", "b.mkv"), 2<<20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq, err := scanner.New(cfg, nil, nil).Releases(ctx, scanner.Options{})
	if err != nil {
		t.Fatalf("Releases: %v", err)
	}
	var seen int
	var lastErr error
	for _, err := range seq {
		if err != nil {
			lastErr = err
			break
		}
		seen++
		cancel()
	}
	if seen != 1 || !errors.Is(lastErr, context.Canceled) {
		t.Fatalf("seen=%d err=%v", seen, lastErr)
	}
}
