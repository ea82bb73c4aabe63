package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"juicenet/internal/queue"
	"juicenet/internal/scanner"
	"juicenet/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.MustEnqueue(t, store, "MovieA")
	if record.State != queue.StatusPending {
		t.Fatalf("expected pending, got %s", record.State)
	}
	if record.FileCount != 1 || record.TotalBytes != 1024 {
		t.Fatalf("unexpected metadata: %+v", record)
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("missing columns: %v", health.MissingColumns)
	}
	if health.SchemaVersion != 1 || health.TotalRecords != 1 {
		t.Fatalf("unexpected health counts: %+v", health)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.MustEnqueue(t, store, "Persisted")
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	status, err := reopened.Status(context.Background(), "Persisted")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != queue.StatusPending {
		t.Fatalf("expected pending after reopen, got %s", status)
	}
}

func TestEnqueueRefreshesButNeverReopensCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "Done")
	advance(t, store, "Done", queue.StatusPending, queue.StatusParityInProgress, queue.StatusPosting, queue.StatusVerifying, queue.StatusCompleted)

	record, err := store.Enqueue(ctx, scanner.Release{ID: "Done", TotalBytes: 99})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if record.State != queue.StatusCompleted {
		t.Fatalf("completed record re-enqueued as %s", record.State)
	}
	if record.TotalBytes != 1024 {
		t.Fatalf("completed record metadata changed: %d", record.TotalBytes)
	}
	if record.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	testsupport.MustEnqueue(t, store, "Open")
	refreshed, err := store.Enqueue(ctx, scanner.Release{ID: "Open", TotalBytes: 4096})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if refreshed.TotalBytes != 4096 || refreshed.State != queue.StatusPending {
		t.Fatalf("expected refreshed pending record, got %+v", refreshed)
	}
}

func TestTransitionIsForwardOnlyAndOptimistic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "R")

	if err := store.Transition(ctx, "R", queue.StatusPending, queue.StatusParityInProgress); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	err := store.Transition(ctx, "R", queue.StatusPending, queue.StatusPosting)
	if !errors.Is(err, queue.ErrConcurrency) {
		t.Fatalf("expected ErrConcurrency for stale from, got %v", err)
	}
	err = store.Transition(ctx, "R", queue.StatusParityInProgress, queue.StatusPending)
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for backward move, got %v", err)
	}
	err = store.Transition(ctx, "missing", queue.StatusPending, queue.StatusPosting)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to queue.Status
		want     bool
	}{
		{queue.StatusPending, queue.StatusParityInProgress, true},
		{queue.StatusPending, queue.StatusPosting, true},
		{queue.StatusVerifying, queue.StatusCompleted, true},
		{queue.StatusPosting, queue.StatusFailed, true},
		{queue.StatusPosting, queue.StatusParityInProgress, false},
		{queue.StatusCompleted, queue.StatusPending, false},
		{queue.StatusFailed, queue.StatusPending, false},
		{queue.StatusPending, queue.StatusPending, false},
	}
	for _, tc := range cases {
		if got := queue.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "Race")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Transition(ctx, "Race", queue.StatusPending, queue.StatusParityInProgress)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, queue.ErrConcurrency):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("successes=%d conflicts=%d", successes, conflicts)
	}
}

func TestAttemptCountIsLargestStageCount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "R")

	for _, stage := range []queue.Stage{queue.StageParity, queue.StagePost, queue.StagePost} {
		if _, err := store.RecordAttempt(ctx, "R", stage); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}
	record, err := store.Get(ctx, "R")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.ParityAttempts != 1 || record.PostAttempts != 2 || record.AttemptCount != 2 {
		t.Fatalf("unexpected attempts: %+v", record)
	}
	if _, err := store.RecordAttempt(ctx, "R", queue.Stage("bogus")); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestRecordFailureOnlyFromActiveStates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "R")
	advance(t, store, "R", queue.StatusPending, queue.StatusParityInProgress, queue.StatusPosting)

	if err := store.RecordFailure(ctx, "R", queue.StagePost, "connection refused"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	record, _ := store.Get(ctx, "R")
	if record.State != queue.StatusFailed || record.FailedStage != queue.StagePost || record.LastError != "connection refused" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if err := store.RecordFailure(ctx, "R", queue.StagePost, "again"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for failed record, got %v", err)
	}
}

func TestRetryFailedResetsOnlyFailedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "R")
	testsupport.MustEnqueue(t, store, "Other")

	mustAttempt(t, store, "R", queue.StageParity)
	if err := store.Transition(ctx, "R", queue.StatusPending, queue.StatusParityInProgress); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := store.SaveParity(ctx, "R", `{"percent":10}`); err != nil {
		t.Fatalf("SaveParity: %v", err)
	}
	if err := store.Transition(ctx, "R", queue.StatusParityInProgress, queue.StatusPosting); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	for i := 0; i < 3; i++ {
		mustAttempt(t, store, "R", queue.StagePost)
	}
	if err := store.RecordFailure(ctx, "R", queue.StagePost, "rejected"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	count, err := store.RetryFailed(ctx, "R")
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried record, got %d", count)
	}
	record, _ := store.Get(ctx, "R")
	if record.State != queue.StatusPending {
		t.Fatalf("expected pending, got %s", record.State)
	}
	if record.PostAttempts != 0 || record.ParityAttempts != 1 {
		t.Fatalf("expected only post attempts reset, got parity=%d post=%d", record.ParityAttempts, record.PostAttempts)
	}
	if !record.HasParity() {
		t.Fatal("expected parity checkpoint to survive retry")
	}
	if record.LastError != "" || record.FailedStage != "" {
		t.Fatalf("expected failure fields cleared: %+v", record)
	}
	if record.ProgressStage != "" || record.ProgressMessage != "Retry requested" {
		t.Fatalf("unexpected progress stage=%q message=%q", record.ProgressStage, record.ProgressMessage)
	}

	other, _ := store.Get(ctx, "Other")
	if other.State != queue.StatusPending {
		t.Fatalf("unrelated record changed: %s", other.State)
	}
}

func TestRollbackReturnsToCheckpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "NoParity")
	advance(t, store, "NoParity", queue.StatusPending, queue.StatusPosting)

	testsupport.MustEnqueue(t, store, "WithParity")
	advance(t, store, "WithParity", queue.StatusPending, queue.StatusParityInProgress)
	if err := store.SaveParity(ctx, "WithParity", `{"percent":10}`); err != nil {
		t.Fatalf("SaveParity: %v", err)
	}
	advance(t, store, "WithParity", queue.StatusParityInProgress, queue.StatusPosting, queue.StatusVerifying)
	if err := store.SavePostResult(ctx, "WithParity", "/tmp/r.nzb", 10, 0); err != nil {
		t.Fatalf("SavePostResult: %v", err)
	}

	testsupport.MustEnqueue(t, store, "MidParity")
	advance(t, store, "MidParity", queue.StatusPending, queue.StatusParityInProgress)

	cases := map[string]queue.Status{
		"NoParity":   queue.StatusPending,
		"WithParity": queue.StatusParityInProgress,
		"MidParity":  queue.StatusPending,
	}
	for id, want := range cases {
		got, err := store.Rollback(ctx, id)
		if err != nil {
			t.Fatalf("Rollback %s: %v", id, err)
		}
		if got != want {
			t.Fatalf("Rollback %s = %s, want %s", id, got, want)
		}
	}
	record, _ := store.Get(ctx, "WithParity")
	if record.NZBPath != "/tmp/r.nzb" || record.SegmentsTotal != 10 {
		t.Fatalf("expected NZB checkpoint to survive rollback: %+v", record)
	}
}

func TestResetInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	states := []queue.Status{queue.StatusParityInProgress, queue.StatusPosting, queue.StatusVerifying, queue.StatusCompleted}
	for i, state := range states {
		id := fmt.Sprintf("R%d", i)
		testsupport.MustEnqueue(t, store, id)
		if err := store.Transition(ctx, id, queue.StatusPending, state); err != nil {
			t.Fatalf("Transition: %v", err)
		}
	}
	if err := store.SaveParity(ctx, "R2", `{"percent":5}`); err != nil {
		t.Fatalf("SaveParity: %v", err)
	}

	affected, err := store.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight: %v", err)
	}
	if affected != 3 {
		t.Fatalf("expected 3 records reset, got %d", affected)
	}
	want := []queue.Status{queue.StatusPending, queue.StatusPending, queue.StatusParityInProgress, queue.StatusCompleted}
	for i, expected := range want {
		status, err := store.Status(ctx, fmt.Sprintf("R%d", i))
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status != expected {
			t.Fatalf("R%d = %s, want %s", i, status, expected)
		}
	}
}

func TestListStatsAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "A")
	testsupport.MustEnqueue(t, store, "B")
	testsupport.MustEnqueue(t, store, "C")
	advance(t, store, "B", queue.StatusPending, queue.StatusCompleted)
	advance(t, store, "C", queue.StatusPending, queue.StatusPosting)
	if err := store.RecordFailure(ctx, "C", queue.StagePost, "boom"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	failed, err := store.List(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 1 || failed[0].ReleaseID != "C" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}
	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Completed != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}

	if n, err := store.ClearCompleted(ctx); err != nil || n != 1 {
		t.Fatalf("ClearCompleted = %d, %v", n, err)
	}
	if n, err := store.ClearFailed(ctx); err != nil || n != 1 {
		t.Fatalf("ClearFailed = %d, %v", n, err)
	}
	removed, err := store.Remove(ctx, "A")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if record, err := store.Get(ctx, "A"); err != nil || record != nil {
		t.Fatalf("expected record gone, got %+v, %v", record, err)
	}
}

func TestRequeueResetsCompletedRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "R")
	if err := store.SavePostResult(ctx, "R", "/tmp/r.nzb", 4, 0); err != nil {
		t.Fatalf("SavePostResult: %v", err)
	}
	advance(t, store, "R", queue.StatusPending, queue.StatusCompleted)

	if err := store.Requeue(ctx, "R"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	record, _ := store.Get(ctx, "R")
	if record.State != queue.StatusPending || record.HasPost() || record.CompletedAt != nil {
		t.Fatalf("expected clean pending record, got %+v", record)
	}
	if err := store.Requeue(ctx, "R"); !errors.Is(err, queue.ErrConcurrency) {
		t.Fatalf("expected ErrConcurrency requeueing pending record, got %v", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "R")

	if err := store.UpdateProgress(ctx, "R", "posting", 42.5, "120/300 articles"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	record, _ := store.Get(ctx, "R")
	if record.ProgressStage != "posting" || record.ProgressPercent != 42.5 || record.ProgressMessage != "120/300 articles" {
		t.Fatalf("progress not persisted: %+v", record)
	}
	if err := store.UpdateProgress(ctx, "missing", "posting", 1, ""); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func advance(t *testing.T, store *queue.Store, id string, states ...queue.Status) {
	t.Helper()
	for i := 1; i < len(states); i++ {
		if err := store.Transition(context.Background(), id, states[i-1], states[i]); err != nil {
			t.Fatalf("Transition %s %s -> %s: %v", id, states[i-1], states[i], err)
		}
	}
}

func mustAttempt(t *testing.T, store *queue.Store, id string, stage queue.Stage) {
	t.Helper()
	if _, err := store.RecordAttempt(context.Background(), id, stage); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
}
