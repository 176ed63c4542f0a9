package slot

import "time"

// LockWindow is how long before a slot starts submissions are refused.
const LockWindow = 5 * time.Minute

// LockStatus describes the submission window of one slot at an instant.
type LockStatus struct {
	Locked         bool
	TimeUntilStart time.Duration
	TimeUntilLock  time.Duration
	// TimeUntilUnlock is how long the lock still holds this slot's booking
	// window; once the slot starts the following slot becomes bookable.
	TimeUntilUnlock time.Duration
}

// Gate decides whether a slot still accepts submissions.
type Gate struct {
	window time.Duration
}

// NewGate returns a Gate with the given lock window. A negative window is
// treated as zero.
func NewGate(window time.Duration) *Gate {
	return &Gate{window: max(window, 0)}
}

// Window returns the configured lock window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// IsLocked reports whether s is within the lock window of now or has
// already started.
func (g *Gate) IsLocked(s Slot, now time.Time) bool {
	return s.Start.Sub(now) <= g.window
}

// Status returns the lock state of s at now. Durations are clamped at zero.
func (g *Gate) Status(s Slot, now time.Time) LockStatus {
	untilStart := s.Start.Sub(now)
	st := LockStatus{
		Locked:         g.IsLocked(s, now),
		TimeUntilStart: max(untilStart, 0),
		TimeUntilLock:  max(untilStart-g.window, 0),
	}
	if st.Locked {
		st.TimeUntilUnlock = st.TimeUntilStart
	}
	return st
}
