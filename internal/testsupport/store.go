package testsupport

import (
	"context"
	"testing"

	"juicenet/internal/config"
	"juicenet/internal/queue"
	"juicenet/internal/scanner"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue inserts a pending record for a release with the given id.
func MustEnqueue(t testing.TB, store *queue.Store, id string) *queue.Record {
	t.Helper()

	record, err := store.Enqueue(context.Background(), scanner.Release{
		ID:         id,
		Root:       "/media",
		Dir:        "/media/" + id,
		Files:      []scanner.SourceFile{{Path: "/media/" + id + "/a.mkv", Name: "a.mkv", Size: 1024}},
		TotalBytes: 1024,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return record
}
