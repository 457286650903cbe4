// Package clock provides a mockable source of "now" so tests can control
// timestamps deterministically, per the design note that a mockable clock
// is required for tests.
package clock

import "time"

// Clock returns the current UTC time. Display conversion to a local
// timezone happens outside the core, never here.
type Clock interface {
	Now() time.Time
}

// System is the default Clock, backed by time.Now().
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock that always returns the same instant, for tests.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }

// Sequence returns a fixed instant on each call, then advances by step —
// useful for tests that need strictly increasing timestamps.
type Sequence struct {
	At   time.Time
	Step time.Duration
}

func (s *Sequence) Now() time.Time {
	t := s.At
	s.At = s.At.Add(s.Step)
	return t
}
