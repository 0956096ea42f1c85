// Package sinks implements progress consumers: a structured log sink and a
// Prometheus sink. Both satisfy progress.Sink.
package sinks
