package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"recap/internal/queue"
	"recap/internal/services"
)

// ExecutorFactory builds an executor. Factories capture their dependencies
// when registered.
type ExecutorFactory func() (Executor, error)

// PublisherFactory builds a publisher.
type PublisherFactory func() (Publisher, error)

// Registry maps backend names to factories per step kind.
type Registry struct {
	mu         sync.RWMutex
	executors  map[Kind]map[string]ExecutorFactory
	publishers map[string]PublisherFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors:  make(map[Kind]map[string]ExecutorFactory),
		publishers: make(map[string]PublisherFactory),
	}
}

// RegisterExecutor adds a named backend for kind. Registering the same name
// twice is an error.
func (r *Registry) RegisterExecutor(kind Kind, name string, factory ExecutorFactory) error {
	name = normalizeName(name)
	if name == "" || factory == nil {
		return fmt.Errorf("register %s executor: name and factory are required", kind)
	}
	if kind == KindPublish {
		return fmt.Errorf("register executor %q: use RegisterPublisher for publish backends", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byName := r.executors[kind]
	if byName == nil {
		byName = make(map[string]ExecutorFactory)
		r.executors[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("register %s executor %q: already registered", kind, name)
	}
	byName[name] = factory
	return nil
}

// RegisterPublisher adds a named publish backend.
func (r *Registry) RegisterPublisher(name string, factory PublisherFactory) error {
	name = normalizeName(name)
	if name == "" || factory == nil {
		return fmt.Errorf("register publisher: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.publishers[name]; exists {
		return fmt.Errorf("register publisher %q: already registered", name)
	}
	r.publishers[name] = factory
	return nil
}

// Executor builds the named backend for kind.
func (r *Registry) Executor(kind Kind, name string) (Executor, error) {
	name = normalizeName(name)
	r.mu.RLock()
	factory, ok := r.executors[kind][name]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, string(kind), "resolve backend",
			fmt.Sprintf("unknown %s backend %q (available: %s)", kind, name, strings.Join(r.Names(kind), ", ")), nil)
	}
	exec, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build %s backend %q: %w", kind, name, err)
	}
	return exec, nil
}

// Publisher builds the named publish backend.
func (r *Registry) Publisher(name string) (Publisher, error) {
	name = normalizeName(name)
	r.mu.RLock()
	factory, ok := r.publishers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, string(KindPublish), "resolve backend",
			fmt.Sprintf("unknown publish backend %q (available: %s)", name, strings.Join(r.Names(KindPublish), ", ")), nil)
	}
	pub, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build publish backend %q: %w", name, err)
	}
	return pub, nil
}

// Names lists registered backends for kind in sorted order.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	if kind == KindPublish {
		for name := range r.publishers {
			names = append(names, name)
		}
	} else {
		for name := range r.executors[kind] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Selection names the backend chosen for each step.
type Selection struct {
	Acquire    string
	Extract    string
	Transcribe string
	Summarize  string
	Publish    []string
}

// Step binds an executor to the job stage it drives.
type Step struct {
	Kind     Kind
	Stage    queue.Stage
	Backend  string
	Executor Executor
}

// Pipeline is the resolved, ordered set of executors plus the publisher.
type Pipeline struct {
	steps     []Step
	publisher Publisher
}

// Resolve builds every selected backend once. Any unknown or failing
// backend aborts resolution.
func (r *Registry) Resolve(sel Selection) (*Pipeline, error) {
	order := []struct {
		kind  Kind
		stage queue.Stage
		name  string
	}{
		{KindAcquire, queue.StageAcquiring, sel.Acquire},
		{KindExtract, queue.StageExtractingAudio, sel.Extract},
		{KindTranscribe, queue.StageTranscribing, sel.Transcribe},
		{KindSummarize, queue.StageSummarizing, sel.Summarize},
	}
	steps := make([]Step, 0, len(order))
	for _, o := range order {
		exec, err := r.Executor(o.kind, o.name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Kind: o.kind, Stage: o.stage, Backend: normalizeName(o.name), Executor: exec})
	}
	pubs := make(MultiPublisher, 0, len(sel.Publish))
	for _, name := range sel.Publish {
		pub, err := r.Publisher(name)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return NewPipeline(steps, pubs), nil
}

// NewPipeline assembles a pipeline from explicit steps.
func NewPipeline(steps []Step, publisher Publisher) *Pipeline {
	return &Pipeline{steps: steps, publisher: publisher}
}

// Steps returns the executors in run order.
func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Publisher returns the fan-out publisher, which may be nil.
func (p *Pipeline) Publisher() Publisher {
	if pubs, ok := p.publisher.(MultiPublisher); ok && len(pubs) == 0 {
		return nil
	}
	return p.publisher
}

// Health queries every executor that reports readiness.
func (p *Pipeline) Health(ctx context.Context) []Health {
	var out []Health
	for _, step := range p.steps {
		if checker, ok := step.Executor.(HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
			continue
		}
		out = append(out, Healthy(string(step.Kind)+":"+step.Backend))
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
