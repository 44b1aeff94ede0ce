// Package progress carries pass and source lifecycle events from the orchestrator to
// pluggable sinks. Events are batched on a background goroutine so emitters never
// block on slow sinks.
package progress
