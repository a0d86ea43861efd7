// Package pool provides the bounded execution pools that stage work runs on.
//
// Two independent pools exist per process: an IO pool for blocking network
// and subprocess waits and a CPU pool for compute-heavy stages such as
// transcription. Each pool runs a fixed number of worker goroutines fed by a
// buffered task channel, so callers never spawn unbounded goroutines for
// stage work. Submission blocks while the queue is full and honours the
// caller's context.
//
// A timeout or cancellation on the awaiting side cancels the task's context,
// but the pool cannot preempt a task that ignores its context; such work
// keeps its worker until it returns.
package pool
