// Package workflow drives jobs through the pipeline under a concurrency
// ceiling.
//
// The Scheduler polls the job store for runnable jobs, claims up to
// max_concurrent of them, and runs each on its own goroutine. Every stage is
// persisted before its executor starts and again once it finishes, and each
// executor runs on the IO or CPU pool its step resolves to, so the goroutine
// per job only waits. Right after acquire the dedup gate may complete the job
// from an earlier one with the same content.
//
// At startup every job left in an intermediate stage is reset to pending;
// afterwards the recovery sweeper runs on its own cron schedule.
//
// With priority.enabled the runnable set is kept in a heap ordered by
// priority and enqueue time, and transient stage failures are retried with
// exponential backoff up to priority.max_retries times. A job waiting on a
// retry stays pending; its heap entry is not due until the backoff elapses.
package workflow
