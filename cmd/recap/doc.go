// Package main hosts the recap CLI entrypoint and command graph.
//
// Commands translate terminal invocations into IPC calls against the daemon.
// Queue maintenance falls back to opening the queue database directly when
// the daemon is not running, so jobs can be inspected, retried, or removed
// offline. The hidden "daemon" command runs the daemon in the foreground and
// is what `recap start` launches in the background.
package main
