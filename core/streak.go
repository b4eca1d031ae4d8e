package core

import "time"

// StreakChange names the transition the tracker took.
type StreakChange string

const (
	StreakStarted   StreakChange = "started"
	StreakUnchanged StreakChange = "unchanged"
	StreakExtended  StreakChange = "extended"
	StreakReset     StreakChange = "reset"
	// StreakStale marks an event dated before the last recorded day.
	StreakStale StreakChange = "stale"
)

// NewDay reports whether the transition recorded activity on a new calendar day.
func (c StreakChange) NewDay() bool {
	return c == StreakStarted || c == StreakExtended || c == StreakReset
}

// StreakTracker advances daily streaks. Days are UTC calendar days.
type StreakTracker struct {
	clock Clock
}

// NewStreakTracker uses clock to date events that carry no timestamp.
func NewStreakTracker(clock Clock) StreakTracker {
	if clock == nil {
		clock = SystemClock{}
	}
	return StreakTracker{clock: clock}
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole UTC days from a to b; both must be day-truncated.
func daysBetween(a, b time.Time) int64 {
	return int64(b.Sub(a) / (24 * time.Hour))
}

// Advance records activity at `at` and returns the next streak.
// Same-day events are idempotent; events older than the last recorded day
// are ignored so Longest never moves because of delayed delivery.
func (t StreakTracker) Advance(s Streak, at time.Time) (Streak, StreakChange) {
	if at.IsZero() {
		at = t.clock.Now()
	}
	day := Day(at)
	next := s
	if next.Longest < next.Current {
		next.Longest = next.Current
	}
	if s.LastActivityDate.IsZero() {
		next.Current = 1
		if next.Longest < 1 {
			next.Longest = 1
		}
		next.LastActivityDate = day
		return next, StreakStarted
	}
	last := Day(s.LastActivityDate)
	switch gap := daysBetween(last, day); {
	case gap == 0:
		return next, StreakUnchanged
	case gap < 0:
		return next, StreakStale
	case gap == 1:
		next.Current++
		if next.Current > next.Longest {
			next.Longest = next.Current
		}
		next.LastActivityDate = day
		return next, StreakExtended
	default:
		next.Current = 1
		next.LastActivityDate = day
		return next, StreakReset
	}
}
