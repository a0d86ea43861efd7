// Package llm provides an OpenAI-compatible chat completion client used by
// the summarize stage.
//
// The client sends a system prompt and a transcript-bearing user prompt and
// returns the assistant text. Requests are paced with a token-bucket limiter
// (requests_per_minute) so a burst of finished transcriptions cannot trip the
// provider's rate limit, and retried on HTTP 408/429/5xx responses and network
// timeouts with capped exponential backoff. Retry-After is honoured.
//
// Failures are tagged with the services error markers: rejected credentials
// surface as configuration errors, other 4xx responses and empty completions
// as validation errors, and exhausted retries as transient failures so the
// priority scheduler may re-arm the job.
package llm
