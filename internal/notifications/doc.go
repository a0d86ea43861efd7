// Package notifications delivers finished jobs to the outside world.
//
// Two publishers are provided: Ntfy posts a push notification when a job
// completes or fails, and Notes exports completed summaries as markdown notes
// with YAML front matter into a directory such as an Obsidian vault folder.
// Both implement stage.Publisher and are registered by name so the
// stages.publish setting selects them.
package notifications
