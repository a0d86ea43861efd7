package workflow_test

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/dedup"
	"recap/internal/pool"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/stage"
	"recap/internal/testsupport"
	"recap/internal/workflow"
)

type stepFunc func(ctx context.Context, in stage.Input) (stage.Output, error)

type stubStep struct {
	kind  stage.Kind
	calls atomic.Int32
	run   stepFunc
}

func (s *stubStep) Run(ctx context.Context, in stage.Input) (stage.Output, error) {
	s.calls.Add(1)
	return s.run(ctx, in)
}

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (p *recordingPublisher) Publish(_ context.Context, job *queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, *job)
	return nil
}

func (p *recordingPublisher) published() []queue.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Job(nil), p.jobs...)
}

type countingObserver struct {
	mu      sync.Mutex
	active  int
	peak    int
	dedup   int
	retries int
}

func (o *countingObserver) JobStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active++
	o.peak = max(o.peak, o.active)
}

func (o *countingObserver) JobFinished(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
}

func (o *countingObserver) StageObserved(queue.Stage, time.Duration, error) {}

func (o *countingObserver) DedupHit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dedup++
}

func (o *countingObserver) RetryScheduled() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

type harness struct {
	t         *testing.T
	cfg       *config.Config
	store     *queue.Store
	steps     map[stage.Kind]*stubStep
	publisher *recordingPublisher
	observer  *countingObserver
	gate      *dedup.Gate
	sched     *workflow.Scheduler

	mu     sync.Mutex
	seen   map[int64][]queue.Stage
	starts []int64
}

// newHarness wires stub executors that record the stage persisted for their
// job at the moment they run.
func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		t:         t,
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		steps:     make(map[stage.Kind]*stubStep),
		publisher: &recordingPublisher{},
		observer:  &countingObserver{},
		seen:      make(map[int64][]queue.Stage),
	}
	h.steps[stage.KindAcquire] = &stubStep{kind: stage.KindAcquire, run: func(_ context.Context, in stage.Input) (stage.Output, error) {
		h.mu.Lock()
		h.starts = append(h.starts, in.JobID)
		h.mu.Unlock()
		key := "test:" + strings.TrimPrefix(in.SourceRef, "https://example.com/")
		return stage.Output{
			ContentKey: key,
			Metadata:   &queue.Metadata{Title: "Title " + key, Platform: "test"},
			Artifacts:  queue.Artifacts{queue.ArtifactMedia: "/store/" + key + "/media.mp4"},
		}, nil
	}}
	h.steps[stage.KindExtract] = &stubStep{kind: stage.KindExtract, run: func(_ context.Context, in stage.Input) (stage.Output, error) {
		return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactAudio: "/store/" + in.ContentKey + "/audio.wav"}}, nil
	}}
	h.steps[stage.KindTranscribe] = &stubStep{kind: stage.KindTranscribe, run: func(_ context.Context, in stage.Input) (stage.Output, error) {
		return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactTranscript: "/store/" + in.ContentKey + "/transcript.txt"}}, nil
	}}
	h.steps[stage.KindSummarize] = &stubStep{kind: stage.KindSummarize, run: func(_ context.Context, in stage.Input) (stage.Output, error) {
		return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactSummary: "/store/" + in.ContentKey + "/summary.md"}}, nil
	}}
	return h
}

func (h *harness) withGate() {
	gate, err := dedup.New(h.store, 16, dedup.WithClaimer(dedup.NewLocalClaimer()))
	if err != nil {
		h.t.Fatalf("dedup.New: %v", err)
	}
	h.gate = gate
}

func (h *harness) override(kind stage.Kind, run stepFunc) {
	h.steps[kind].run = run
}

func (h *harness) recordStage(kind stage.Kind) {
	step := h.steps[kind]
	inner := step.run
	step.run = func(ctx context.Context, in stage.Input) (stage.Output, error) {
		job, err := h.store.GetByID(ctx, in.JobID)
		if err == nil && job != nil {
			h.mu.Lock()
			h.seen[in.JobID] = append(h.seen[in.JobID], job.Stage)
			h.mu.Unlock()
		}
		return inner(ctx, in)
	}
}

func (h *harness) start() {
	h.t.Helper()
	pools := pool.NewSet(h.cfg.Pools.IOWorkers, h.cfg.Pools.CPUWorkers, h.cfg.Pools.QueueDepth, nil)
	h.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pools.Shutdown(ctx)
	})
	order := []struct {
		kind  stage.Kind
		stage queue.Stage
	}{
		{stage.KindAcquire, queue.StageAcquiring},
		{stage.KindExtract, queue.StageExtractingAudio},
		{stage.KindTranscribe, queue.StageTranscribing},
		{stage.KindSummarize, queue.StageSummarizing},
	}
	steps := make([]stage.Step, 0, len(order))
	for _, o := range order {
		steps = append(steps, stage.Step{Kind: o.kind, Stage: o.stage, Backend: "stub", Executor: h.steps[o.kind]})
	}
	deps := workflow.Deps{
		Config:   h.cfg,
		Store:    h.store,
		Pools:    pools,
		Pipeline: stage.NewPipeline(steps, stage.MultiPublisher{h.publisher}),
		Observer: h.observer,
	}
	if h.gate != nil {
		deps.Gate = h.gate
	}
	sched, err := workflow.New(deps)
	if err != nil {
		h.t.Fatalf("workflow.New: %v", err)
	}
	if err := sched.Start(context.Background()); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.t.Cleanup(sched.Stop)
	h.sched = sched
}

func (h *harness) create(ref string, priority queue.Priority) *queue.Job {
	h.t.Helper()
	job, err := h.store.Create(context.Background(), "https://example.com/"+ref, priority)
	if err != nil {
		h.t.Fatalf("Create: %v", err)
	}
	return job
}

func (h *harness) waitStage(id int64, want queue.Stage) *queue.Job {
	h.t.Helper()
	var last *queue.Job
	testsupport.WaitFor(h.t, 5*time.Second, func() bool {
		job, err := h.store.GetByID(context.Background(), id)
		if err != nil || job == nil {
			return false
		}
		last = job
		return job.Stage == want
	})
	return last
}

func TestHappyPathProducesFourArtifacts(t *testing.T) {
	h := newHarness(t)
	for kind := range h.steps {
		h.recordStage(kind)
	}
	job := h.create("abc", queue.PriorityNormal)
	h.start()

	done := h.waitStage(job.ID, queue.StageCompleted)
	if done.Progress != 100 || done.CompletedAt == nil || done.Error != "" {
		t.Fatalf("unexpected completion state %+v", done)
	}
	if len(done.Artifacts) != 4 {
		t.Fatalf("expected four artifacts, got %v", done.Artifacts)
	}
	if done.ContentKey != "test:abc" || done.Metadata.Title != "Title test:abc" || done.Attempts != 1 {
		t.Fatalf("acquire output not recorded: %+v", done)
	}

	h.mu.Lock()
	seen := h.seen[job.ID]
	h.mu.Unlock()
	want := []queue.Stage{queue.StageAcquiring, queue.StageExtractingAudio, queue.StageTranscribing, queue.StageSummarizing}
	if len(seen) != len(want) {
		t.Fatalf("expected %d executor runs, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("executor %d saw persisted stage %s, want %s", i, seen[i], want[i])
		}
	}

	testsupport.WaitFor(t, 2*time.Second, func() bool { return len(h.publisher.published()) == 1 })
	if got := h.publisher.published()[0]; got.Stage != queue.StageCompleted {
		t.Fatalf("published job in stage %s", got.Stage)
	}
}

func TestTranscribeFailureKeepsEarlierArtifacts(t *testing.T) {
	h := newHarness(t)
	h.override(stage.KindTranscribe, func(context.Context, stage.Input) (stage.Output, error) {
		return stage.Output{}, services.Wrap(services.ErrValidation, "transcribe", "read transcript", "transcript is empty", nil)
	})
	job := h.create("silent", queue.PriorityNormal)
	h.start()

	failed := h.waitStage(job.ID, queue.StageFailed)
	if len(failed.Artifacts) != 2 || failed.Artifacts[queue.ArtifactMedia] == "" || failed.Artifacts[queue.ArtifactAudio] == "" {
		t.Fatalf("expected media and audio artifacts only, got %v", failed.Artifacts)
	}
	if !strings.Contains(failed.Error, "transcribe") || !strings.Contains(failed.Error, "transcript is empty") {
		t.Fatalf("unexpected error message %q", failed.Error)
	}
	if failed.CompletedAt == nil || failed.Progress != queue.StageTranscribing.StartProgress() {
		t.Fatalf("unexpected failure state %+v", failed)
	}
	if n := h.steps[stage.KindSummarize].calls.Load(); n != 0 {
		t.Fatalf("summarize must not run after a failure, ran %d times", n)
	}
	testsupport.WaitFor(t, 2*time.Second, func() bool { return len(h.publisher.published()) == 1 })
}

func TestDuplicateContentSkipsCostlyStages(t *testing.T) {
	h := newHarness(t)
	h.withGate()
	// Two different links resolve to the same video.
	h.override(stage.KindAcquire, func(context.Context, stage.Input) (stage.Output, error) {
		return stage.Output{
			ContentKey: "test:shared",
			Metadata:   &queue.Metadata{Title: "Shared video", Platform: "test"},
			Artifacts:  queue.Artifacts{queue.ArtifactMedia: "/store/test:shared/media.mp4"},
		}, nil
	})

	first := h.create("watch?v=shared", queue.PriorityNormal)
	h.start()
	original := h.waitStage(first.ID, queue.StageCompleted)
	if len(original.Artifacts) != 4 {
		t.Fatalf("first job should run every stage, got %v", original.Artifacts)
	}

	second := h.create("shorts/shared", queue.PriorityNormal)
	h.sched.Wake()
	done := h.waitStage(second.ID, queue.StageCompleted)

	if done.SourceRef == original.SourceRef {
		t.Fatal("jobs must differ in source reference")
	}
	if done.ContentKey != "test:shared" || !maps.Equal(done.Artifacts, original.Artifacts) || done.Metadata.Title != "Shared video" {
		t.Fatalf("duplicate should inherit the earlier results: %+v", done)
	}
	if n := h.steps[stage.KindAcquire].calls.Load(); n != 2 {
		t.Fatalf("acquire should run for both jobs, ran %d times", n)
	}
	for _, kind := range []stage.Kind{stage.KindExtract, stage.KindTranscribe, stage.KindSummarize} {
		if n := h.steps[kind].calls.Load(); n != 1 {
			t.Fatalf("%s ran %d times, want once for the first job only", kind, n)
		}
	}
	h.observer.mu.Lock()
	hits := h.observer.dedup
	h.observer.mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected one dedup hit, got %d", hits)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxConcurrent(2))
	h.override(stage.KindTranscribe, func(_ context.Context, in stage.Input) (stage.Output, error) {
		time.Sleep(30 * time.Millisecond)
		return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactTranscript: "/t/" + in.ContentKey}}, nil
	})
	var ids []int64
	for _, ref := range []string{"a", "b", "c", "d", "e", "f"} {
		ids = append(ids, h.create(ref, queue.PriorityNormal).ID)
	}
	h.start()

	for _, id := range ids {
		h.waitStage(id, queue.StageCompleted)
	}
	h.observer.mu.Lock()
	peak := h.observer.peak
	h.observer.mu.Unlock()
	if peak > 2 {
		t.Fatalf("more than two jobs ran at once: %d", peak)
	}
	if peak < 2 {
		t.Fatalf("expected the scheduler to use both slots, peak %d", peak)
	}
}

func TestStartupRecoveryResumesOrphans(t *testing.T) {
	h := newHarness(t)
	orphan := h.create("orphan", queue.PriorityNormal)
	testsupport.SetStage(t, h.store, orphan, queue.StageTranscribing)
	h.start()

	done := h.waitStage(orphan.ID, queue.StageCompleted)
	if done.Attempts != 1 {
		t.Fatalf("expected the orphan to be claimed once after reset, got %d", done.Attempts)
	}
}

func TestRecoveredJobDropsStaleArtifacts(t *testing.T) {
	h := newHarness(t)
	h.override(stage.KindTranscribe, func(context.Context, stage.Input) (stage.Output, error) {
		return stage.Output{}, services.Wrap(services.ErrValidation, "transcribe", "read transcript", "transcript is empty", nil)
	})
	orphan := h.create("rerun", queue.PriorityNormal)
	orphan.ContentKey = "test:rerun"
	orphan.Artifacts = queue.Artifacts{
		queue.ArtifactMedia:      "/old/media.mp4",
		queue.ArtifactAudio:      "/old/audio.wav",
		queue.ArtifactTranscript: "/old/transcript.txt",
	}
	testsupport.SetStage(t, h.store, orphan, queue.StageSummarizing)
	h.start()

	failed := h.waitStage(orphan.ID, queue.StageFailed)
	want := queue.Artifacts{
		queue.ArtifactMedia: "/store/test:rerun/media.mp4",
		queue.ArtifactAudio: "/store/test:rerun/audio.wav",
	}
	if !maps.Equal(failed.Artifacts, want) {
		t.Fatalf("expected only this run's media and audio, got %v", failed.Artifacts)
	}
}

func TestPriorityOrdersLaunches(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxConcurrent(1), testsupport.WithPriority(0))
	low := h.create("low", queue.PriorityLow)
	normal := h.create("normal", queue.PriorityNormal)
	urgent := h.create("urgent", queue.PriorityUrgent)
	h.start()

	h.waitStage(low.ID, queue.StageCompleted)
	h.mu.Lock()
	starts := append([]int64(nil), h.starts...)
	h.mu.Unlock()
	want := []int64{urgent.ID, normal.ID, low.ID}
	if len(starts) != len(want) {
		t.Fatalf("expected %d launches, got %v", len(want), starts)
	}
	for i := range want {
		if starts[i] != want[i] {
			t.Fatalf("launch order %v, want %v", starts, want)
		}
	}
}

// watchStages records every distinct stage job id passes through until it
// completes or the test ends.
func (h *harness) watchStages(id int64) func() []queue.Stage {
	var (
		mu    sync.Mutex
		trail []queue.Stage
	)
	done := make(chan struct{})
	stop := make(chan struct{})
	h.t.Cleanup(func() { close(stop) })
	go func() {
		defer close(done)
		for {
			job, err := h.store.GetByID(context.Background(), id)
			if err == nil && job != nil {
				mu.Lock()
				if len(trail) == 0 || trail[len(trail)-1] != job.Stage {
					trail = append(trail, job.Stage)
				}
				mu.Unlock()
				if job.Stage == queue.StageCompleted {
					return
				}
			}
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()
	return func() []queue.Stage {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return append([]queue.Stage(nil), trail...)
	}
}

func TestPriorityRetriesTransientFailures(t *testing.T) {
	h := newHarness(t, testsupport.WithPriority(2))
	var failures atomic.Int32
	failed := make(chan struct{})
	h.override(stage.KindTranscribe, func(_ context.Context, in stage.Input) (stage.Output, error) {
		if failures.Add(1) == 1 {
			close(failed)
			return stage.Output{}, services.Wrap(services.ErrTransient, "transcribe", "run", "model busy", nil)
		}
		return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactTranscript: "/t/" + in.ContentKey}}, nil
	})
	job := h.create("flaky", queue.PriorityNormal)
	trail := h.watchStages(job.ID)
	h.start()

	<-failed
	testsupport.WaitFor(t, 2*time.Second, func() bool { return len(h.sched.PendingRetries()) == 1 })
	waiting, err := h.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if waiting.Stage != queue.StagePending || waiting.CompletedAt != nil || len(waiting.Artifacts) != 0 {
		t.Fatalf("job backing off should be pending without results, got %+v", waiting)
	}
	if !strings.Contains(waiting.Error, "model busy") {
		t.Fatalf("pending retry should keep the last error, got %q", waiting.Error)
	}
	retries := h.sched.PendingRetries()
	if len(retries) != 1 || retries[0].JobID != job.ID || retries[0].Retries != 1 || !retries[0].NotBefore.After(time.Now()) {
		t.Fatalf("expected one retry backing off, got %+v", retries)
	}
	if n := h.steps[stage.KindAcquire].calls.Load(); n != 1 {
		t.Fatalf("job relaunched before its backoff elapsed, acquire ran %d times", n)
	}

	done := h.waitStage(job.ID, queue.StageCompleted)
	if done.Attempts != 2 || done.Error != "" {
		t.Fatalf("expected a clean second attempt, got attempts %d error %q", done.Attempts, done.Error)
	}
	if n := h.steps[stage.KindAcquire].calls.Load(); n != 2 {
		t.Fatalf("retry should restart from acquire, acquire ran %d times", n)
	}
	for _, st := range trail() {
		if st == queue.StageFailed {
			t.Fatalf("job passed through failed while a retry was scheduled: %v", trail())
		}
	}
	if len(h.sched.PendingRetries()) != 0 {
		t.Fatalf("retry should be consumed, got %v", h.sched.PendingRetries())
	}
}

func TestPriorityFailsOnceRetriesRunOut(t *testing.T) {
	h := newHarness(t, testsupport.WithPriority(1))
	h.override(stage.KindExtract, func(context.Context, stage.Input) (stage.Output, error) {
		return stage.Output{}, services.Wrap(services.ErrTransient, "extract", "run", "ffmpeg busy", nil)
	})
	job := h.create("down", queue.PriorityNormal)
	h.start()

	failed := h.waitStage(job.ID, queue.StageFailed)
	if failed.Attempts != 2 || failed.CompletedAt == nil || !strings.Contains(failed.Error, "ffmpeg busy") {
		t.Fatalf("expected failure after one retry, got %+v", failed)
	}
	h.observer.mu.Lock()
	scheduled := h.observer.retries
	h.observer.mu.Unlock()
	if scheduled != 1 {
		t.Fatalf("expected one retry scheduled, got %d", scheduled)
	}
	testsupport.WaitFor(t, 2*time.Second, func() bool { return len(h.publisher.published()) == 1 })
}

func TestCancelJobWaitingOnRetry(t *testing.T) {
	h := newHarness(t, testsupport.WithPriority(2))
	h.override(stage.KindTranscribe, func(context.Context, stage.Input) (stage.Output, error) {
		return stage.Output{}, services.Wrap(services.ErrTransient, "transcribe", "run", "model busy", nil)
	})
	job := h.create("parked", queue.PriorityNormal)
	h.start()

	testsupport.WaitFor(t, 2*time.Second, func() bool { return len(h.sched.PendingRetries()) == 1 })
	ok, err := h.sched.Cancel(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel: %v %v", ok, err)
	}
	got, _ := h.store.GetByID(context.Background(), job.ID)
	if got.Stage != queue.StageFailed || got.Error != "cancelled by operator" {
		t.Fatalf("cancelled retry should fail, got %s %q", got.Stage, got.Error)
	}
	if len(h.sched.PendingRetries()) != 0 {
		t.Fatal("cancel should drop the queued retry")
	}
	time.Sleep(1200 * time.Millisecond)
	if n := h.steps[stage.KindAcquire].calls.Load(); n != 1 {
		t.Fatalf("cancelled job ran again, acquire ran %d times", n)
	}
}

func TestPriorityDoesNotRetryValidationFailures(t *testing.T) {
	h := newHarness(t, testsupport.WithPriority(3))
	h.override(stage.KindSummarize, func(context.Context, stage.Input) (stage.Output, error) {
		return stage.Output{}, services.Wrap(services.ErrValidation, "summarize", "run", "empty summary", nil)
	})
	job := h.create("bad", queue.PriorityNormal)
	h.start()

	failed := h.waitStage(job.ID, queue.StageFailed)
	time.Sleep(50 * time.Millisecond)
	if failed.Attempts != 1 || len(h.sched.PendingRetries()) != 0 {
		t.Fatalf("validation failures must not be retried: attempts %d, retries %v", failed.Attempts, h.sched.PendingRetries())
	}
}

func TestCancelRunningJob(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	h.override(stage.KindTranscribe, func(ctx context.Context, _ stage.Input) (stage.Output, error) {
		close(entered)
		<-ctx.Done()
		return stage.Output{}, ctx.Err()
	})
	job := h.create("long", queue.PriorityNormal)
	h.start()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("transcribe never started")
	}
	status := h.sched.Status(context.Background())
	if len(status.Active) != 1 || status.Active[0].ID != job.ID || status.Active[0].Stage != queue.StageTranscribing {
		t.Fatalf("unexpected active set %+v", status.Active)
	}

	ok, err := h.sched.Cancel(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel: %v %v", ok, err)
	}
	failed := h.waitStage(job.ID, queue.StageFailed)
	if failed.Error != "cancelled by operator" {
		t.Fatalf("unexpected error %q", failed.Error)
	}
	testsupport.WaitFor(t, 2*time.Second, func() bool { return !h.sched.IsActive(job.ID) })
}

func TestCancelPendingAndUnknownJobs(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.sched.Stop()

	job := h.create("queued", queue.PriorityNormal)
	ok, err := h.sched.Cancel(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel pending: %v %v", ok, err)
	}
	got, _ := h.store.GetByID(context.Background(), job.ID)
	if got.Stage != queue.StageFailed {
		t.Fatalf("cancelled job should be failed, got %s", got.Stage)
	}
	if ok, err := h.sched.Cancel(context.Background(), job.ID); ok || err != nil {
		t.Fatalf("cancelling a finished job should be a no-op: %v %v", ok, err)
	}
	if _, err := h.sched.Cancel(context.Background(), 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStopLeavesRunningJobForRecovery(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	h.override(stage.KindExtract, func(ctx context.Context, _ stage.Input) (stage.Output, error) {
		close(entered)
		<-ctx.Done()
		return stage.Output{}, ctx.Err()
	})
	job := h.create("interrupted", queue.PriorityNormal)
	h.start()
	<-entered
	h.sched.Stop()

	got, _ := h.store.GetByID(context.Background(), job.ID)
	if got.Stage != queue.StageExtractingAudio || got.Error != "" {
		t.Fatalf("shutdown must leave the job in place, got %s %q", got.Stage, got.Error)
	}
	if h.sched.Status(context.Background()).Running {
		t.Fatal("scheduler still reports running")
	}
}

func TestNewRequiresPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := workflow.New(workflow.Deps{Config: cfg}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
