package slot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

func newTestClock(t *testing.T) *Clock {
	t.Helper()
	c, err := NewClock(DefaultZone)
	require.NoError(t, err)
	return c
}

func berlin(t *testing.T, c *Clock, y int, m time.Month, d, h, minute int) time.Time {
	t.Helper()
	return time.Date(y, m, d, h, minute, 0, 0, c.Location())
}

func TestSlotAtKnownInstants(t *testing.T) {
	c := newTestClock(t)

	tests := []struct {
		name   string
		key    string
		at     time.Time
		number int
		start  time.Time
		end    time.Time
	}{
		{"1h second quarter", "1h", berlin(t, c, 2024, 6, 12, 10, 20), 2, berlin(t, c, 2024, 6, 12, 10, 15), berlin(t, c, 2024, 6, 12, 10, 30)},
		{"4h block", "4h", berlin(t, c, 2024, 6, 12, 9, 59), 2, berlin(t, c, 2024, 6, 12, 9, 0), berlin(t, c, 2024, 6, 12, 10, 0)},
		{"6h block", "6h", berlin(t, c, 2024, 6, 12, 13, 30), 2, berlin(t, c, 2024, 6, 12, 13, 0), berlin(t, c, 2024, 6, 12, 14, 0)},
		{"12h afternoon", "12h", berlin(t, c, 2024, 6, 12, 19, 0), 3, berlin(t, c, 2024, 6, 12, 18, 0), berlin(t, c, 2024, 6, 12, 21, 0)},
		{"24h last slot", "24h", berlin(t, c, 2024, 6, 12, 23, 59), 8, berlin(t, c, 2024, 6, 12, 21, 0), berlin(t, c, 2024, 6, 13, 0, 0)},
		{"1w wednesday", "1w", berlin(t, c, 2024, 6, 12, 8, 0), 3, berlin(t, c, 2024, 6, 12, 0, 0), berlin(t, c, 2024, 6, 13, 0, 0)},
		{"1mo stretched last slot", "1mo", berlin(t, c, 2024, 1, 30, 12, 0), 4, berlin(t, c, 2024, 1, 22, 0, 0), berlin(t, c, 2024, 2, 1, 0, 0)},
		{"1mo second week", "1mo", berlin(t, c, 2024, 2, 8, 0, 0), 2, berlin(t, c, 2024, 2, 8, 0, 0), berlin(t, c, 2024, 2, 15, 0, 0)},
		{"3mo middle month", "3mo", berlin(t, c, 2024, 5, 15, 0, 0), 2, berlin(t, c, 2024, 5, 1, 0, 0), berlin(t, c, 2024, 6, 1, 0, 0)},
		{"6mo november", "6mo", berlin(t, c, 2024, 11, 1, 0, 0), 5, berlin(t, c, 2024, 11, 1, 0, 0), berlin(t, c, 2024, 12, 1, 0, 0)},
		{"1y last quarter", "1y", berlin(t, c, 2024, 12, 31, 23, 0), 4, berlin(t, c, 2024, 10, 1, 0, 0), berlin(t, c, 2025, 1, 1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := c.SlotAt(tt.at, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.number, s.Number)
			assert.True(t, tt.start.Equal(s.Start), "start %s, want %s", s.Start, tt.start)
			assert.True(t, tt.end.Equal(s.End), "end %s, want %s", s.End, tt.end)
		})
	}
}

func TestSlotAtIgnoresCallerZone(t *testing.T) {
	c := newTestClock(t)
	// 08:10 UTC in June is 10:10 in Berlin.
	at := time.Date(2024, 6, 12, 8, 10, 0, 0, time.UTC)

	n, err := c.SlotNumberAt(at, "24h")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = c.SlotNumberAt(at, "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnknownDuration(t *testing.T) {
	c := newTestClock(t)
	_, err := c.SlotAt(time.Now(), "2h")
	assert.True(t, errors.Is(err, domain.ErrUnknownDuration))
}

func TestSlotInPeriodRange(t *testing.T) {
	c := newTestClock(t)
	at := berlin(t, c, 2024, 6, 12, 10, 0)

	_, err := c.SlotInPeriod("1h", 0, at)
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
	_, err = c.SlotInPeriod("1h", 5, at)
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)

	start, end, err := c.Boundaries("1h", 4, at)
	require.NoError(t, err)
	assert.True(t, berlin(t, c, 2024, 6, 12, 10, 45).Equal(start))
	assert.True(t, berlin(t, c, 2024, 6, 12, 11, 0).Equal(end))
}

// The instant a period ends belongs to slot 1 of the next period, never to a
// clamped last slot of the old one.
func TestPeriodRolloverBoundary(t *testing.T) {
	c := newTestClock(t)
	at := berlin(t, c, 2024, 6, 12, 10, 20)

	for _, key := range Keys() {
		t.Run(key, func(t *testing.T) {
			spec, err := Lookup(key)
			require.NoError(t, err)
			_, end, err := c.PeriodAt(key, at)
			require.NoError(t, err)

			last, err := c.SlotAt(end.Add(-time.Nanosecond), key)
			require.NoError(t, err)
			assert.Equal(t, spec.SlotCount, last.Number)
			assert.True(t, end.Equal(last.End))

			first, err := c.SlotAt(end, key)
			require.NoError(t, err)
			assert.Equal(t, 1, first.Number)
			assert.True(t, end.Equal(first.Start))

			nextStart, _, err := c.PeriodAt(key, end)
			require.NoError(t, err)
			assert.True(t, end.Equal(nextStart))
		})
	}
}

func TestNextRollsIntoFollowingPeriod(t *testing.T) {
	c := newTestClock(t)

	s, err := c.Next(berlin(t, c, 2024, 6, 12, 10, 50), "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Number)
	assert.True(t, berlin(t, c, 2024, 6, 12, 11, 0).Equal(s.Start))

	s, err = c.Next(berlin(t, c, 2024, 6, 12, 10, 15), "1h")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Number, "a slot starting exactly now is not upcoming")

	s, err = c.Next(berlin(t, c, 2024, 12, 31, 23, 0), "1y")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Number)
	assert.True(t, berlin(t, c, 2025, 1, 1, 0, 0).Equal(s.Start))
}

func TestSpringForwardSkipsMissingHour(t *testing.T) {
	c := newTestClock(t)
	// 2024-03-31: 02:00 CET jumps to 03:00 CEST.
	slots, err := c.Slots("4h", berlin(t, c, 2024, 3, 31, 1, 30))
	require.NoError(t, err)
	require.Len(t, slots, 4)

	assert.False(t, slots[0].Empty())
	assert.False(t, slots[1].Empty())
	assert.True(t, slots[2].Empty(), "02:00-03:00 does not exist")
	assert.Equal(t, time.Hour, slots[3].End.Sub(slots[3].Start))

	s, err := c.SlotAt(berlin(t, c, 2024, 3, 31, 3, 30), "4h")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Number)

	next, err := c.Next(berlin(t, c, 2024, 3, 31, 1, 30), "4h")
	require.NoError(t, err)
	assert.Equal(t, 4, next.Number)

	day, err := c.SlotAt(berlin(t, c, 2024, 3, 31, 1, 0), "24h")
	require.NoError(t, err)
	assert.Equal(t, 1, day.Number)
	assert.Equal(t, 2*time.Hour, day.End.Sub(day.Start))

	start, end, err := c.PeriodAt("24h", day.Start)
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestFallBackLengthensSlot(t *testing.T) {
	c := newTestClock(t)
	// 2024-10-27: 03:00 CEST falls back to 02:00 CET.
	day, err := c.SlotAt(berlin(t, c, 2024, 10, 27, 1, 0), "24h")
	require.NoError(t, err)
	assert.Equal(t, 1, day.Number)
	assert.Equal(t, 4*time.Hour, day.End.Sub(day.Start))

	start, end, err := c.PeriodAt("24h", day.Start)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Hour, end.Sub(start))

	// Both passes through 02:30 land in a slot that contains them.
	first := time.Date(2024, 10, 27, 0, 30, 0, 0, time.UTC)
	second := time.Date(2024, 10, 27, 1, 30, 0, 0, time.UTC)
	for _, at := range []time.Time{first, second} {
		s, err := c.SlotAt(at, "1h")
		require.NoError(t, err)
		assert.True(t, s.Contains(at))
	}
}

func TestLastInstant(t *testing.T) {
	c := newTestClock(t)
	s, err := c.SlotAt(berlin(t, c, 2024, 6, 12, 10, 20), "1h")
	require.NoError(t, err)
	assert.True(t, berlin(t, c, 2024, 6, 12, 10, 30).Add(-time.Millisecond).Equal(s.LastInstant()))
}

func TestMonth(t *testing.T) {
	c := newTestClock(t)
	// 23:30 UTC on Jan 31 is already February in Berlin.
	assert.Equal(t, "2024-02", c.Month(time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC)))
}

// drawInstant picks either a uniform instant or one close to a Berlin DST
// transition, where boundary arithmetic is most likely to go wrong.
func drawInstant(t *rapid.T) time.Time {
	if rapid.Bool().Draw(t, "nearDST") {
		year := rapid.IntRange(2020, 2030).Draw(t, "year")
		month := rapid.SampledFrom([]time.Month{time.March, time.October}).Draw(t, "month")
		lastDay := time.Date(year, month, 31, 1, 0, 0, 0, time.UTC)
		transition := lastDay.AddDate(0, 0, -int(lastDay.Weekday()))
		offset := rapid.Int64Range(-36*3600, 36*3600).Draw(t, "offset")
		return transition.Add(time.Duration(offset) * time.Second)
	}
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	to := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC).Unix()
	return time.Unix(rapid.Int64Range(from, to).Draw(t, "unix"), 0)
}

func TestSlotsTilePeriodProperty(t *testing.T) {
	c := newTestClock(t)
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SampledFrom(Keys()).Draw(t, "key")
		at := drawInstant(t)

		spec, _ := Lookup(key)
		slots, err := c.Slots(key, at)
		if err != nil {
			t.Fatalf("slots: %v", err)
		}
		start, end, _ := c.PeriodAt(key, at)

		if len(slots) != spec.SlotCount {
			t.Fatalf("got %d slots, want %d", len(slots), spec.SlotCount)
		}
		if !slots[0].Start.Equal(start) || !slots[len(slots)-1].End.Equal(end) {
			t.Fatalf("slots do not cover period [%s, %s)", start, end)
		}
		for i, s := range slots {
			if s.End.Before(s.Start) {
				t.Fatalf("slot %d ends before it starts", s.Number)
			}
			if i > 0 && !slots[i-1].End.Equal(s.Start) {
				t.Fatalf("gap or overlap between slot %d and %d", i, i+1)
			}
		}
		if start.After(at) || !end.After(at) {
			t.Fatalf("period [%s, %s) does not contain %s", start, end, at)
		}
	})
}

func TestSlotAtProperty(t *testing.T) {
	c := newTestClock(t)
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SampledFrom(Keys()).Draw(t, "key")
		at := drawInstant(t)

		spec, _ := Lookup(key)
		s, err := c.SlotAt(at, key)
		if err != nil {
			t.Fatalf("slot at: %v", err)
		}
		if s.Number < 1 || s.Number > spec.SlotCount {
			t.Fatalf("slot number %d out of range", s.Number)
		}
		if !s.Contains(at) {
			t.Fatalf("slot %d [%s, %s) does not contain %s", s.Number, s.Start, s.End, at)
		}

		next, err := c.Next(at, key)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !next.Start.After(at) || next.Empty() {
			t.Fatalf("next slot %d at %s is not upcoming", next.Number, next.Start)
		}
		again, _ := c.SlotAt(next.Start, key)
		if again.Number != next.Number || !again.Start.Equal(next.Start) {
			t.Fatalf("next slot %d does not round-trip, got %d", next.Number, again.Number)
		}
	})
}

func TestSlotNumberMonotonicProperty(t *testing.T) {
	c := newTestClock(t)
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SampledFrom(Keys()).Draw(t, "key")
		at := drawInstant(t)

		_, end, _ := c.PeriodAt(key, at)
		remaining := int64(end.Sub(at) / time.Second)
		later := at.Add(time.Duration(rapid.Int64Range(0, remaining-1).Draw(t, "step")) * time.Second)
		if later.Before(at) {
			later = at
		}

		n1, _ := c.SlotNumberAt(at, key)
		n2, _ := c.SlotNumberAt(later, key)
		if n2 < n1 {
			t.Fatalf("slot number went from %d at %s to %d at %s", n1, at, n2, later)
		}
	})
}
