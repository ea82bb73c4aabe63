package workflow_test

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"juicenet/internal/config"
	"juicenet/internal/logging"
	"juicenet/internal/notifications"
	"juicenet/internal/nzb"
	"juicenet/internal/organizer"
	"juicenet/internal/parity"
	"juicenet/internal/posting"
	"juicenet/internal/queue"
	"juicenet/internal/retry"
	"juicenet/internal/scanner"
	"juicenet/internal/services"
	"juicenet/internal/stage"
	"juicenet/internal/testsupport"
	"juicenet/internal/verification"
	"juicenet/internal/workflow"
)

type fakeParity struct {
	cfg   *config.Config
	calls atomic.Int32
}

func (f *fakeParity) Run(_ context.Context, release scanner.Release, progress stage.Progress) (*parity.Artifact, error) {
	f.calls.Add(1)
	dir := filepath.Join(f.cfg.Paths.StagingDir, release.ID)
	path := filepath.Join(dir, release.Name()+".par2")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte("par2"), 0o644); err != nil {
		return nil, err
	}
	progress.Report(100, "done")
	return &parity.Artifact{OutputDir: dir, IndexFile: path, Files: []string{path}, RequestedPercent: 10}, nil
}

type fakePost struct {
	cfg   *config.Config
	calls atomic.Int32
	// fail returns the error for a 1-based call number, or nil.
	fail func(call int) error
	// block makes the post wait for cancellation.
	block   bool
	started chan struct{}
}

func (f *fakePost) Run(ctx context.Context, release scanner.Release, artifact *parity.Artifact, progress stage.Progress) (*posting.Result, error) {
	call := int(f.calls.Add(1))
	if f.block {
		if f.started != nil {
			close(f.started)
			f.started = nil
		}
		progress.Report(40, "posting")
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return nil, err
		}
	}
	path := filepath.Join(f.cfg.Paths.StagingDir, release.ID, release.Name()+".nzb")
	doc := &nzb.NZB{Files: []nzb.File{{
		Poster:   "poster <p@example.com>",
		Subject:  `"a.mkv" yEnc (1/1)`,
		Groups:   []string{"alt.binaries.test"},
		Segments: []nzb.Segment{{Bytes: 1024, Number: 1, MessageID: "a@example.com"}},
	}}}
	if err := nzb.WriteFile(path, doc); err != nil {
		return nil, err
	}
	files := release.Paths()
	if artifact != nil {
		files = append(files, artifact.Files...)
	}
	return &posting.Result{NZBPath: path, Files: files, TotalArticles: 1, Posted: 1}, nil
}

type fakeVerify struct {
	calls atomic.Int32
	err   error
}

func (f *fakeVerify) Run(context.Context, scanner.Release, *posting.Result) (verification.Report, error) {
	f.calls.Add(1)
	return verification.Report{Files: 1, Segments: 1}, f.err
}

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.events = append(r.events, event)
	return nil
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	parity   *fakeParity
	post     *fakePost
	verify   *fakeVerify
	notifier *recordingNotifier
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StopGrace = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		parity:   &fakeParity{cfg: cfg},
		post:     &fakePost{cfg: cfg},
		verify:   &fakeVerify{},
		notifier: &recordingNotifier{},
	}
}

func (h *harness) coordinator() *workflow.Coordinator {
	stages := workflow.StageSet{
		Parity:    h.parity,
		Post:      h.post,
		Verify:    h.verify,
		Organizer: organizer.NewOrganizer(h.cfg, nil, logging.NewNop()),
	}
	return workflow.NewCoordinator(h.cfg, h.store, stages, logging.NewNop(),
		workflow.WithNotifier(h.notifier),
		workflow.WithPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}),
		workflow.WithSleeper(retry.SleeperFunc(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		})),
	)
}

func (h *harness) release(t *testing.T, id string) scanner.Release {
	t.Helper()
	root := testsupport.MediaRoot(h.cfg)
	path := filepath.Join(root, id, "a.mkv")
	testsupport.WriteFile(t, path, 4096)
	return scanner.Release{
		ID:            id,
		Root:          root,
		Dir:           filepath.Join(root, id),
		Files:         []scanner.SourceFile{{Path: path, Name: "a.mkv", Size: 4096}},
		TotalBytes:    4096,
		ParityPercent: 10,
	}
}

func seq(releases ...scanner.Release) iter.Seq2[scanner.Release, error] {
	return func(yield func(scanner.Release, error) bool) {
		for _, release := range releases {
			if !yield(release, nil) {
				return
			}
		}
	}
}

func mustRecord(t *testing.T, store *queue.Store, id string) *queue.Record {
	t.Helper()
	record, err := store.Get(context.Background(), id)
	if err != nil || record == nil {
		t.Fatalf("Get(%s): %v %v", id, record, err)
	}
	return record
}

func TestCoordinatorCompletesRelease(t *testing.T) {
	h := newHarness(t)
	release := h.release(t, "MovieA")

	var progress atomic.Int32
	summary, err := h.coordinator().Run(context.Background(), seq(release), workflow.Options{
		OnProgress: func(workflow.ProgressEvent) { progress.Add(1) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 1 || summary.ExitCode() != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	result := summary.Releases[0]
	want := organizer.Destination(h.cfg, release)
	if result.Outcome != workflow.OutcomeCompleted || result.NZBPath != want {
		t.Fatalf("unexpected result %+v (want nzb %s)", result, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected organized nzb: %v", err)
	}
	record := mustRecord(t, h.store, "MovieA")
	if record.State != queue.StatusCompleted || record.NZBPath != want {
		t.Fatalf("unexpected record state=%s nzb=%s", record.State, record.NZBPath)
	}
	if record.ParityAttempts != 1 || record.PostAttempts != 1 || record.VerifyAttempts != 1 {
		t.Fatalf("unexpected attempts %d/%d/%d", record.ParityAttempts, record.PostAttempts, record.VerifyAttempts)
	}
	if progress.Load() == 0 {
		t.Fatal("expected progress events")
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0] != notifications.EventRunCompleted {
		t.Fatalf("unexpected notifications %v", h.notifier.events)
	}
}

func TestCoordinatorSkipsCompletedReleases(t *testing.T) {
	h := newHarness(t)
	release := h.release(t, "MovieA")
	coord := h.coordinator()

	if _, err := coord.Run(context.Background(), seq(release), workflow.Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := coord.Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Skipped != 1 || summary.Completed != 0 {
		t.Fatalf("expected skip on second run, got %+v", summary)
	}
	if h.post.calls.Load() != 1 {
		t.Fatalf("expected one post, got %d", h.post.calls.Load())
	}

	forced, err := coord.Run(context.Background(), seq(release), workflow.Options{Force: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if forced.Completed != 1 || h.post.calls.Load() != 2 {
		t.Fatalf("expected forced repost, summary=%+v posts=%d", forced, h.post.calls.Load())
	}
}

func TestCoordinatorRetriesConnectionFailures(t *testing.T) {
	h := newHarness(t)
	h.post.fail = func(call int) error {
		if call == 1 {
			return services.Wrap(services.ErrConnection, "post", "connect", "connection refused", nil)
		}
		return nil
	}
	release := h.release(t, "MovieA")

	summary, err := h.coordinator().Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("expected completion after retry, got %+v", summary)
	}
	record := mustRecord(t, h.store, "MovieA")
	if record.PostAttempts != 2 {
		t.Fatalf("post attempts = %d, want 2", record.PostAttempts)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != time.Second {
		t.Fatalf("unexpected backoff %v", h.sleeps)
	}
}

func TestCoordinatorFailsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.post.fail = func(int) error {
		return services.Wrap(services.ErrConnection, "post", "connect", "connection refused", nil)
	}
	release := h.release(t, "MovieA")

	summary, err := h.coordinator().Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.ExitCode() != 1 {
		t.Fatalf("expected failure, got %+v", summary)
	}
	result := summary.Releases[0]
	if result.Stage != queue.StagePost || result.State != queue.StatusFailed {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.post.calls.Load() != 3 || len(h.sleeps) != 2 {
		t.Fatalf("posts=%d sleeps=%v", h.post.calls.Load(), h.sleeps)
	}
	if h.sleeps[1] != 2*time.Second {
		t.Fatalf("expected exponential backoff, got %v", h.sleeps)
	}
	var failedEvents int
	for _, event := range h.notifier.events {
		if event == notifications.EventReleaseFailed {
			failedEvents++
		}
	}
	if failedEvents != 1 {
		t.Fatalf("expected one failure notification, got %v", h.notifier.events)
	}
}

func TestCoordinatorDoesNotRetryRejectedPosts(t *testing.T) {
	h := newHarness(t)
	h.post.fail = func(call int) error {
		if call == 1 {
			return services.Wrap(services.ErrRejected, "post", "upload", "441 posting failed", nil)
		}
		return nil
	}
	release := h.release(t, "MovieA")
	coord := h.coordinator()

	summary, err := coord.Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || h.post.calls.Load() != 1 || len(h.sleeps) != 0 {
		t.Fatalf("expected immediate failure, summary=%+v posts=%d", summary, h.post.calls.Load())
	}

	// A failed release stays failed until it is retried explicitly.
	again, err := coord.Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.FailedEarlier != 1 || again.Skipped != 0 || again.ExitCode() != 1 || h.post.calls.Load() != 1 {
		t.Fatalf("expected failed release to be reported without reposting, got %+v", again)
	}
	earlier := again.Releases[0]
	if earlier.Outcome != workflow.OutcomeFailedEarlier || earlier.State != queue.StatusFailed {
		t.Fatalf("unexpected result %+v", earlier)
	}
	if earlier.Stage != queue.StagePost || earlier.Error == "" {
		t.Fatalf("expected recorded failure detail, got stage=%q error=%q", earlier.Stage, earlier.Error)
	}

	if n, err := h.store.RetryFailed(context.Background(), "MovieA"); err != nil || n != 1 {
		t.Fatalf("RetryFailed: %d %v", n, err)
	}
	record := mustRecord(t, h.store, "MovieA")
	if record.PostAttempts != 0 || record.ParityAttempts != 1 {
		t.Fatalf("retry should reset only the failed stage: parity=%d post=%d", record.ParityAttempts, record.PostAttempts)
	}

	retried, err := coord.Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("retried run: %v", err)
	}
	if retried.Completed != 1 {
		t.Fatalf("expected completion after retry, got %+v", retried)
	}
	if h.parity.calls.Load() != 1 {
		t.Fatalf("expected recovery files to be reused, parity ran %d times", h.parity.calls.Load())
	}
}

func TestCoordinatorStopRollsBackToCheckpoint(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.post.block = true
	h.post.started = started
	release := h.release(t, "MovieA")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	summary, err := h.coordinator().Run(ctx, seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Interrupted != 1 || !summary.Stopped || summary.ExitCode() != 0 {
		t.Fatalf("expected interrupted run, got %+v", summary)
	}
	record := mustRecord(t, h.store, "MovieA")
	if record.State != queue.StatusParityInProgress || !record.HasParity() {
		t.Fatalf("expected rollback to parity checkpoint, got %s", record.State)
	}
	if record.ProgressPercent != 0 {
		t.Fatalf("expected progress reset, got %v", record.ProgressPercent)
	}

	h.post.block = false
	resumed, err := h.coordinator().Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if resumed.Completed != 1 {
		t.Fatalf("expected completion on resume, got %+v", resumed)
	}
	if h.parity.calls.Load() != 1 {
		t.Fatalf("parity should not rerun, ran %d times", h.parity.calls.Load())
	}
	if record := mustRecord(t, h.store, "MovieA"); record.PostAttempts != 2 {
		t.Fatalf("interrupted attempt should count, post attempts = %d", record.PostAttempts)
	}
}

func TestCoordinatorResumesVerifyAfterPost(t *testing.T) {
	h := newHarness(t)
	h.verify.err = services.Wrap(services.ErrVerification, "verify", "check", "nzb lists no files", nil)
	release := h.release(t, "MovieA")
	coord := h.coordinator()

	summary, err := coord.Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Releases[0].Stage != queue.StageVerify {
		t.Fatalf("expected verify failure, got %+v", summary)
	}
	if _, err := h.store.RetryFailed(context.Background()); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}

	h.verify.err = nil
	retried, err := coord.Run(context.Background(), seq(release), workflow.Options{})
	if err != nil {
		t.Fatalf("retried run: %v", err)
	}
	if retried.Completed != 1 {
		t.Fatalf("expected completion, got %+v", retried)
	}
	if h.post.calls.Load() != 1 {
		t.Fatalf("post checkpoint should be reused, posted %d times", h.post.calls.Load())
	}
}

func TestCoordinatorOnlyParity(t *testing.T) {
	h := newHarness(t)
	release := h.release(t, "MovieA")

	summary, err := h.coordinator().Run(context.Background(), seq(release), workflow.Options{OnlyParity: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ParityOnly != 1 || h.post.calls.Load() != 0 {
		t.Fatalf("expected parity-only run, summary=%+v posts=%d", summary, h.post.calls.Load())
	}
	record := mustRecord(t, h.store, "MovieA")
	if record.State != queue.StatusParityInProgress || !record.HasParity() {
		t.Fatalf("unexpected record state %s", record.State)
	}
}

func TestCoordinatorOnlyPostSkipsParity(t *testing.T) {
	h := newHarness(t)
	release := h.release(t, "MovieA")

	summary, err := h.coordinator().Run(context.Background(), seq(release), workflow.Options{OnlyPost: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 1 || h.parity.calls.Load() != 0 {
		t.Fatalf("summary=%+v parity=%d", summary, h.parity.calls.Load())
	}
}

func TestCoordinatorProcessesReleasesConcurrently(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workflow.Workers = 3
	var releases []scanner.Release
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		releases = append(releases, h.release(t, id))
	}

	summary, err := h.coordinator().Run(context.Background(), seq(releases...), workflow.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 5 {
		t.Fatalf("expected all releases completed, got %+v", summary)
	}
	for i, result := range summary.Releases {
		if result.ReleaseID != releases[i].ID {
			t.Fatalf("results out of scan order: %d = %s", i, result.ReleaseID)
		}
	}
}

func TestCoordinatorReturnsScanError(t *testing.T) {
	h := newHarness(t)
	release := h.release(t, "MovieA")
	scanErr := errors.New("media root vanished")
	releases := func(yield func(scanner.Release, error) bool) {
		if !yield(release, nil) {
			return
		}
		yield(scanner.Release{}, scanErr)
	}

	summary, err := h.coordinator().Run(context.Background(), releases, workflow.Options{})
	if !errors.Is(err, scanErr) {
		t.Fatalf("expected scan error, got %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("releases before the error should finish, got %+v", summary)
	}
}

func TestCoordinatorStatusReportsQueueStats(t *testing.T) {
	h := newHarness(t)
	testsupport.MustEnqueue(t, h.store, "Pending")

	status := h.coordinator().Status(context.Background())
	if status.QueueStats[queue.StatusPending] != 1 {
		t.Fatalf("unexpected stats %v", status.QueueStats)
	}
}
