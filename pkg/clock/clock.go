// Package clock provides a tiny seam for injecting the current time into
// otherwise-pure calculators (horizon due-sets, window boundaries, cron
// next-fire computation) so they stay deterministic under test.
package clock

import "time"

// Clock returns the current time. Production code uses Real(); tests use a
// Fixed value so date-boundary math is reproducible.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, backed by time.Now.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant. Used by tests.
type Fixed struct {
	T time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.T }
