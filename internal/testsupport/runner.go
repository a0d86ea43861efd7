package testsupport

import (
	"context"
	"sync"

	"recap/internal/services"
)

// Invocation records one call made through a FakeRunner.
type Invocation struct {
	Binary string
	Args   []string
}

// FakeRunner is a services.CommandRunner that records invocations and
// answers through Handler. A nil Handler succeeds with empty output.
type FakeRunner struct {
	Handler func(ctx context.Context, binary string, args []string) (services.CommandResult, error)

	mu    sync.Mutex
	calls []Invocation
}

// Run records the invocation and delegates to Handler.
func (f *FakeRunner) Run(ctx context.Context, binary string, args ...string) (services.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Invocation{Binary: binary, Args: append([]string(nil), args...)})
	f.mu.Unlock()
	if f.Handler == nil {
		return services.CommandResult{}, nil
	}
	return f.Handler(ctx, binary, args)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Invocation, len(f.calls))
	copy(out, f.calls)
	return out
}

// ArgValue returns the argument following flag, or "" when absent.
func ArgValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
