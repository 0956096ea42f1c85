// Package progress provides the event primitives and the non-blocking hub that
// workers use to report per-file ingestion milestones. Events are batched on a
// background goroutine and fanned out to sinks such as structured logs and
// Prometheus collectors.
package progress
