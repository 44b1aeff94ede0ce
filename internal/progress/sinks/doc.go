// Package sinks implements progress consumers: structured logs and a message
// topic. Each satisfies progress.Sink.
package sinks
