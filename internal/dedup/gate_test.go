package dedup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"recap/internal/config"
	"recap/internal/dedup"
	"recap/internal/queue"
	"recap/internal/testsupport"
)

func completedJob(t *testing.T, store *queue.Store, key string) *queue.Job {
	t.Helper()
	job := testsupport.NewJob(t, store, "https://example.com/"+key)
	job.ContentKey = key
	job.Artifacts = queue.Artifacts{
		queue.ArtifactMedia:      "/a/media.mp4",
		queue.ArtifactAudio:      "/a/audio.wav",
		queue.ArtifactTranscript: "/a/transcript.txt",
		queue.ArtifactSummary:    "/a/summary.md",
	}
	job.Metadata = queue.Metadata{Title: "Original", Platform: "youtube"}
	testsupport.SetStage(t, store, job, queue.StageCompleted)
	return job
}

func startMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestFindCompletedAndApply(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	source := completedJob(t, store, "youtube:abc")
	dup := testsupport.NewJob(t, store, "https://youtu.be/abc")

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate, err := dedup.New(store, 8, dedup.WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	found, ok, err := gate.FindCompleted(context.Background(), "youtube:abc", dup.ID)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if found.ID != source.ID {
		t.Fatalf("expected source %d, got %d", source.ID, found.ID)
	}

	gate.Apply(dup, found)
	if dup.Stage != queue.StageCompleted || dup.Progress != 100 || dup.CompletedAt == nil || !dup.CompletedAt.Equal(fixed) {
		t.Fatalf("unexpected completion state %+v", dup)
	}
	if len(dup.Artifacts) != 4 || dup.Artifacts[queue.ArtifactSummary] != "/a/summary.md" || dup.Metadata.Title != "Original" {
		t.Fatalf("artifacts or metadata not copied: %+v", dup)
	}
	dup.Artifacts[queue.ArtifactSummary] = "changed"
	if found.Artifacts[queue.ArtifactSummary] == "changed" {
		t.Fatal("artifacts must be copied, not shared")
	}
}

func TestFindCompletedIgnoresSelfAndUnfinished(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	self := completedJob(t, store, "k")
	other := testsupport.NewJob(t, store, "u")
	other.ContentKey = "k2"
	testsupport.SetStage(t, store, other, queue.StageTranscribing)

	gate, _ := dedup.New(store, 0)
	if _, ok, _ := gate.FindCompleted(context.Background(), "k", self.ID); ok {
		t.Fatal("a job must not dedup against itself")
	}
	if _, ok, _ := gate.FindCompleted(context.Background(), "k2", 0); ok {
		t.Fatal("in-flight jobs are not dedup sources")
	}
	if _, ok, _ := gate.FindCompleted(context.Background(), "", 0); ok {
		t.Fatal("empty key never matches")
	}
}

func TestCachedEntryIsRevalidated(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	source := completedJob(t, store, "k")
	gate, _ := dedup.New(store, 4)

	if _, ok, _ := gate.FindCompleted(context.Background(), "k", 0); !ok {
		t.Fatal("expected first lookup to hit")
	}
	if _, err := store.Remove(context.Background(), source.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, err := gate.FindCompleted(context.Background(), "k", 0); ok || err != nil {
		t.Fatalf("stale cache entry must not be used: ok=%v err=%v", ok, err)
	}
}

func TestCheckWithoutClaimerIsLookupOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	gate, _ := dedup.New(store, 4)
	decision, err := gate.Check(context.Background(), "fresh", 1)
	if err != nil || decision.Duplicate() {
		t.Fatalf("unexpected decision %+v err=%v", decision, err)
	}
	decision.Release(context.Background())
}

func TestRedisClaimLoserWaitsForWinner(t *testing.T) {
	mr := startMiniRedis(t)
	client := dedup.NewRedisClient(config.Dedup{RedisAddr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if err := dedup.Ping(context.Background(), client); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	gate, _ := dedup.New(store, 4,
		dedup.WithClaimer(dedup.NewRedisClaimer(client)),
		dedup.WithClaimTiming(time.Minute, 5*time.Second, 10*time.Millisecond),
	)

	winner, err := gate.Check(context.Background(), "youtube:race", 1)
	if err != nil || winner.Duplicate() {
		t.Fatalf("winner should proceed: %+v %v", winner, err)
	}
	if !mr.Exists("recap:claim:youtube:race") {
		t.Fatal("expected claim key in redis")
	}

	var (
		wg    sync.WaitGroup
		loser dedup.Decision
		lerr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		loser, lerr = gate.Check(context.Background(), "youtube:race", 2)
	}()

	time.Sleep(50 * time.Millisecond)
	source := completedJob(t, store, "youtube:race")
	winner.Release(context.Background())
	wg.Wait()

	if lerr != nil || !loser.Duplicate() || loser.Source.ID != source.ID {
		t.Fatalf("loser should dedup against winner: %+v %v", loser, lerr)
	}
	if mr.Exists("recap:claim:youtube:race") {
		t.Fatal("claim should be released")
	}
}

func TestRedisClaimLoserProceedsAfterWait(t *testing.T) {
	mr := startMiniRedis(t)
	client := dedup.NewRedisClient(config.Dedup{RedisAddr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	gate, _ := dedup.New(store, 0,
		dedup.WithClaimer(dedup.NewRedisClaimer(client)),
		dedup.WithClaimTiming(time.Minute, 30*time.Millisecond, 5*time.Millisecond),
	)
	if _, err := gate.Check(context.Background(), "slow", 1); err != nil {
		t.Fatalf("Check: %v", err)
	}
	start := time.Now()
	decision, err := gate.Check(context.Background(), "slow", 2)
	if err != nil || decision.Duplicate() {
		t.Fatalf("loser should proceed after wait: %+v %v", decision, err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("loser returned before claim_wait elapsed")
	}
}

func TestRedisReleaseOnlyByOwner(t *testing.T) {
	mr := startMiniRedis(t)
	client := dedup.NewRedisClient(config.Dedup{RedisAddr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	claimer := dedup.NewRedisClaimer(client)
	ctx := context.Background()

	if ok, err := claimer.Claim(ctx, "k", "a", time.Minute); !ok || err != nil {
		t.Fatalf("first claim should win: %v %v", ok, err)
	}
	if ok, _ := claimer.Claim(ctx, "k", "b", time.Minute); ok {
		t.Fatal("second claim should lose")
	}
	if err := claimer.Release(ctx, "k", "b"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !mr.Exists("recap:claim:k") {
		t.Fatal("non-owner must not release")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := claimer.Claim(ctx, "k", "b", time.Minute); !ok {
		t.Fatal("expired claim should be reclaimable")
	}
}

func TestLocalClaimer(t *testing.T) {
	claimer := dedup.NewLocalClaimer()
	ctx := context.Background()
	if ok, _ := claimer.Claim(ctx, "k", "a", time.Hour); !ok {
		t.Fatal("expected win")
	}
	if ok, _ := claimer.Claim(ctx, "k", "b", time.Hour); ok {
		t.Fatal("expected loss")
	}
	_ = claimer.Release(ctx, "k", "a")
	if ok, _ := claimer.Claim(ctx, "k", "b", time.Hour); !ok {
		t.Fatal("expected win after release")
	}
}

func TestNewRedisClientWithoutAddr(t *testing.T) {
	if dedup.NewRedisClient(config.Dedup{}) != nil {
		t.Fatal("expected nil client without address")
	}
}
