// Package stage defines the contracts between the scheduler and the backends
// that perform each pipeline step, plus the registry that selects backends
// by name at startup.
package stage

import (
	"context"
	"errors"

	"recap/internal/pool"
	"recap/internal/queue"
)

// Kind identifies a pipeline step.
type Kind string

const (
	KindAcquire    Kind = "acquire"
	KindExtract    Kind = "extract"
	KindTranscribe Kind = "transcribe"
	KindSummarize  Kind = "summarize"
	KindPublish    Kind = "publish"
)

// Input is everything an executor may read about the job it runs for.
type Input struct {
	JobID      int64
	SourceRef  string
	ContentKey string
	Artifacts  queue.Artifacts
	Metadata   queue.Metadata
}

// Output carries what an executor produced. Artifacts are merged into the
// job; ContentKey and Metadata are only honoured from the acquire step.
type Output struct {
	ContentKey string
	Metadata   *queue.Metadata
	Artifacts  queue.Artifacts
}

// Executor performs one pipeline step.
type Executor interface {
	Run(ctx context.Context, in Input) (Output, error)
}

// ResourceAware executors choose the pool they run on.
type ResourceAware interface {
	Resource() pool.Kind
}

// HealthChecker executors report backend readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Publisher delivers a finished job somewhere. Failures never change the
// job's outcome.
type Publisher interface {
	Publish(ctx context.Context, job *queue.Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, in Input) (Output, error)

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// DefaultResource returns the pool a step runs on when its executor does not
// say otherwise.
func DefaultResource(kind Kind) pool.Kind {
	if kind == KindTranscribe {
		return pool.KindCPU
	}
	return pool.KindIO
}

// ResourceFor resolves the pool for an executor of the given kind.
func ResourceFor(kind Kind, exec Executor) pool.Kind {
	if aware, ok := exec.(ResourceAware); ok {
		if r := aware.Resource(); r != "" {
			return r
		}
	}
	return DefaultResource(kind)
}

// MultiPublisher fans a job out to every publisher and joins their errors.
type MultiPublisher []Publisher

// Publish calls every publisher even when an earlier one fails.
func (m MultiPublisher) Publish(ctx context.Context, job *queue.Job) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
