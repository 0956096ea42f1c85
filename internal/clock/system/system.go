// Package system provides the wall clock used to stamp runs.
package system

import "time"

// DefaultPrecision matches the epoch-millisecond timestamps of indexed documents.
const DefaultPrecision = time.Millisecond

// Clock implements ingest.Clock in UTC, truncated to a fixed precision so run
// timestamps round-trip unchanged through JSON summaries and the ledger.
type Clock struct {
	precision time.Duration
}

// New creates a Clock with DefaultPrecision.
func New() *Clock {
	return &Clock{precision: DefaultPrecision}
}

// NewWithPrecision creates a Clock truncating to precision; non-positive
// values keep the full monotonic-free wall time.
func NewWithPrecision(precision time.Duration) *Clock {
	return &Clock{precision: precision}
}

// Now returns the current UTC time truncated to the clock's precision.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now.Round(0)
}
