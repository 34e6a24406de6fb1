package pcc

import "time"

// Time is a monotonic scalar expressed in microseconds, supplied by the
// caller at every entry point. Unlike congestion_bbr1's Clock/monotime.Time
// pair, the core never reads a clock of its own: spec section 1 names the
// clock source as an external collaborator, so there is no Now() here —
// every Time value this package ever sees arrived as a function argument.
type Time int64

// Sub returns t - other as a time.Duration.
func (t Time) Sub(other Time) time.Duration {
	return time.Duration(t-other) * time.Microsecond
}

// Add returns t advanced by d.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d.Microseconds())
}

// IsZero reports whether t is the zero value.
func (t Time) IsZero() bool { return t == 0 }
