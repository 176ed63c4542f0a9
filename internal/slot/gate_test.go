package slot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestGateStatus(t *testing.T) {
	g := NewGate(LockWindow)
	start := time.Date(2024, 6, 12, 11, 0, 0, 0, time.UTC)
	s := Slot{Duration: "1h", Number: 1, Start: start, End: start.Add(15 * time.Minute)}

	tests := []struct {
		name string
		now  time.Time
		want LockStatus
	}{
		{
			name: "open",
			now:  start.Add(-10 * time.Minute),
			want: LockStatus{Locked: false, TimeUntilStart: 10 * time.Minute, TimeUntilLock: 5 * time.Minute},
		},
		{
			name: "exactly at lock",
			now:  start.Add(-5 * time.Minute),
			want: LockStatus{Locked: true, TimeUntilStart: 5 * time.Minute, TimeUntilUnlock: 5 * time.Minute},
		},
		{
			name: "inside window",
			now:  start.Add(-4 * time.Minute),
			want: LockStatus{Locked: true, TimeUntilStart: 4 * time.Minute, TimeUntilUnlock: 4 * time.Minute},
		},
		{
			name: "started",
			now:  start.Add(3 * time.Minute),
			want: LockStatus{Locked: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Status(s, tt.now))
			assert.Equal(t, tt.want.Locked, g.IsLocked(s, tt.now))
		})
	}
}

func TestNegativeWindowIsZero(t *testing.T) {
	g := NewGate(-time.Minute)
	assert.Equal(t, time.Duration(0), g.Window())
}

func TestLockWindowProperty(t *testing.T) {
	g := NewGate(LockWindow)
	rapid.Check(t, func(t *rapid.T) {
		start := time.Unix(rapid.Int64Range(0, 1<<32).Draw(t, "start"), 0)
		before := time.Duration(rapid.Int64Range(0, int64(2*time.Hour)).Draw(t, "before"))
		s := Slot{Start: start, End: start.Add(time.Hour)}

		locked := g.IsLocked(s, start.Add(-before))
		if before <= LockWindow && !locked {
			t.Fatalf("slot %s before start is not locked", before)
		}
		if before > LockWindow && locked {
			t.Fatalf("slot %s before start is locked", before)
		}
	})
}
