// Package logs tails the daemon log file for the CLI and the IPC LogTail call.
//
// Negative offsets read the last N lines; non-negative offsets continue from
// a previous read, optionally waiting for new lines. A job filter keeps only
// entries carrying a given job_id field in either the JSON or the console
// encoding.
package logs
