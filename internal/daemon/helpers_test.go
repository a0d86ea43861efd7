package daemon

import (
	"context"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/pool"
	"recap/internal/queue"
	"recap/internal/stage"
	"recap/internal/testsupport"
	"recap/internal/workflow"
)

type fixture struct {
	cfg    *config.Config
	store  *queue.Store
	daemon *Daemon
}

func instantPipeline() *stage.Pipeline {
	ok := func(kind stage.Kind) stage.ExecutorFunc {
		return func(_ context.Context, in stage.Input) (stage.Output, error) {
			switch kind {
			case stage.KindAcquire:
				return stage.Output{
					ContentKey: "test:" + in.SourceRef,
					Artifacts:  queue.Artifacts{queue.ArtifactMedia: "/media"},
				}, nil
			case stage.KindExtract:
				return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactAudio: "/audio"}}, nil
			case stage.KindTranscribe:
				return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactTranscript: "/transcript"}}, nil
			default:
				return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactSummary: "/summary"}}, nil
			}
		}
	}
	return stage.NewPipeline([]stage.Step{
		{Kind: stage.KindAcquire, Stage: queue.StageAcquiring, Backend: "stub", Executor: ok(stage.KindAcquire)},
		{Kind: stage.KindExtract, Stage: queue.StageExtractingAudio, Backend: "stub", Executor: ok(stage.KindExtract)},
		{Kind: stage.KindTranscribe, Stage: queue.StageTranscribing, Backend: "stub", Executor: ok(stage.KindTranscribe)},
		{Kind: stage.KindSummarize, Stage: queue.StageSummarizing, Backend: "stub", Executor: ok(stage.KindSummarize)},
	}, nil)
}

func newFixture(t *testing.T, cfg *config.Config, opts ...Option) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	pools := pool.NewSet(cfg.Pools.IOWorkers, cfg.Pools.CPUWorkers, cfg.Pools.QueueDepth, nil)
	sched, err := workflow.New(workflow.Deps{Config: cfg, Store: store, Pools: pools, Pipeline: instantPipeline()})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	d, err := New(cfg, store, sched, nil, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pools.Shutdown(ctx)
	})
	return &fixture{cfg: cfg, store: store, daemon: d}
}
