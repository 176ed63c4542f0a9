package slot

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// DefaultZone is the reference zone slot boundaries are aligned to.
const DefaultZone = "Europe/Berlin"

// Slot is one numbered interval [Start, End) of a duration's period.
type Slot struct {
	Duration string
	Number   int
	Start    time.Time
	End      time.Time
}

// Contains reports whether t falls inside the slot.
func (s Slot) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Empty reports whether the slot has no length. This only happens for a slot
// whose wall-clock start falls into a skipped DST hour.
func (s Slot) Empty() bool {
	return !s.End.After(s.Start)
}

// LastInstant is the inclusive end shown to clients.
func (s Slot) LastInstant() time.Time {
	return s.End.Add(-time.Millisecond)
}

// Clock maps instants to slots in a fixed reference zone. All boundaries are
// wall-clock anchors in that zone, so they follow its DST rules.
type Clock struct {
	loc *time.Location
}

// NewClock returns a Clock for the named IANA zone.
func NewClock(zone string) (*Clock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("slot: load zone %q: %w", zone, err)
	}
	return &Clock{loc: loc}, nil
}

// Location returns the reference zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Month returns the reference-zone month of t as YYYY-MM.
func (c *Clock) Month(t time.Time) string {
	return t.In(c.loc).Format("2006-01")
}

// SlotAt returns the slot of key that contains t.
func (c *Clock) SlotAt(t time.Time, key string) (Slot, error) {
	spec, err := Lookup(key)
	if err != nil {
		return Slot{}, err
	}
	p := c.periodAt(spec, t)
	return p.slot(p.numberAt(t)), nil
}

// SlotNumberAt returns the number of the slot of key that contains t.
func (c *Clock) SlotNumberAt(t time.Time, key string) (int, error) {
	s, err := c.SlotAt(t, key)
	if err != nil {
		return 0, err
	}
	return s.Number, nil
}

// SlotInPeriod returns slot n of the period of key that contains at.
func (c *Clock) SlotInPeriod(key string, n int, at time.Time) (Slot, error) {
	spec, err := Lookup(key)
	if err != nil {
		return Slot{}, err
	}
	if n < 1 || n > spec.SlotCount {
		return Slot{}, fmt.Errorf("%w: slot %d out of range 1-%d for %s", domain.ErrInvalidSlot, n, spec.SlotCount, key)
	}
	return c.periodAt(spec, at).slot(n), nil
}

// Boundaries returns [start, end) of slot n in the period containing at.
func (c *Clock) Boundaries(key string, n int, at time.Time) (time.Time, time.Time, error) {
	s, err := c.SlotInPeriod(key, n, at)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return s.Start, s.End, nil
}

// Slots returns every slot of the period containing at, including empty ones.
func (c *Clock) Slots(key string, at time.Time) ([]Slot, error) {
	spec, err := Lookup(key)
	if err != nil {
		return nil, err
	}
	p := c.periodAt(spec, at)
	out := make([]Slot, spec.SlotCount)
	for n := 1; n <= spec.SlotCount; n++ {
		out[n-1] = p.slot(n)
	}
	return out, nil
}

// PeriodAt returns the bounds of the period of key containing t.
func (c *Clock) PeriodAt(key string, t time.Time) (time.Time, time.Time, error) {
	spec, err := Lookup(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	p := c.periodAt(spec, t)
	return p.start(), p.end(), nil
}

// Next returns the first non-empty slot of key starting strictly after t. It
// rolls into the following period when the current one has no later slot.
func (c *Clock) Next(t time.Time, key string) (Slot, error) {
	spec, err := Lookup(key)
	if err != nil {
		return Slot{}, err
	}
	p := c.periodAt(spec, t)
	// A couple of periods is always enough; the bound guards against a zone
	// whose rules produce empty periods back to back.
	for range 4 {
		for n := 1; n <= spec.SlotCount; n++ {
			s := p.slot(n)
			if s.Start.After(t) && !s.Empty() {
				return s, nil
			}
		}
		p = c.build(spec, p.anchor.shift(spec, 1))
	}
	return Slot{}, fmt.Errorf("%w: no upcoming slot for %s after %s", domain.ErrInvalidSlot, key, t.Format(time.RFC3339))
}

// anchor is a wall-clock position in the reference zone. Fields are kept
// normalised so they can be shifted with plain arithmetic.
type anchor struct {
	year  int
	month time.Month
	day   int
	hour  int
}

func normalize(a anchor) anchor {
	t := time.Date(a.year, a.month, a.day, a.hour, 0, 0, 0, time.UTC)
	return anchor{year: t.Year(), month: t.Month(), day: t.Day(), hour: t.Hour()}
}

// shift moves the anchor by n periods of spec.
func (a anchor) shift(spec Spec, n int) anchor {
	switch spec.Period {
	case PeriodHours:
		a.hour += n * spec.PeriodSpan
	case PeriodWeek:
		a.day += 7 * n
	default:
		a.month += time.Month(n * spec.PeriodSpan)
	}
	return normalize(a)
}

func (c *Clock) at(a anchor) time.Time {
	return time.Date(a.year, a.month, a.day, a.hour, 0, 0, 0, c.loc)
}

// anchorOf derives the period anchor from t's local wall clock.
func (c *Clock) anchorOf(spec Spec, t time.Time) anchor {
	lt := t.In(c.loc)
	y, m, d := lt.Date()
	switch spec.Period {
	case PeriodHours:
		return anchor{year: y, month: m, day: d, hour: lt.Hour() / spec.PeriodSpan * spec.PeriodSpan}
	case PeriodWeek:
		back := (int(lt.Weekday()) + 6) % 7
		return normalize(anchor{year: y, month: m, day: d - back})
	default:
		first := (int(m)-1)/spec.PeriodSpan*spec.PeriodSpan + 1
		return anchor{year: y, month: time.Month(first), day: 1}
	}
}

// periodAt returns the period whose [start, end) contains t. The wall-clock
// anchor can land after t inside a repeated fall-back hour, so it is walked
// back and forth until it brackets t.
func (c *Clock) periodAt(spec Spec, t time.Time) period {
	a := c.anchorOf(spec, t)
	for c.at(a).After(t) {
		a = a.shift(spec, -1)
	}
	for {
		next := a.shift(spec, 1)
		if c.at(next).After(t) {
			break
		}
		a = next
	}
	return c.build(spec, a)
}

// build computes the slot boundaries of the period anchored at a. Boundaries
// are forced monotone so a start inside a skipped hour collapses onto its
// neighbour instead of overlapping it.
func (c *Clock) build(spec Spec, a anchor) period {
	start := c.at(a)
	end := c.at(a.shift(spec, 1))
	bounds := make([]time.Time, spec.SlotCount+1)
	bounds[0] = start
	bounds[spec.SlotCount] = end
	for i := 1; i < spec.SlotCount; i++ {
		b := c.slotStart(spec, a, i)
		if b.After(end) {
			b = end
		}
		if b.Before(bounds[i-1]) {
			b = bounds[i-1]
		}
		bounds[i] = b
	}
	return period{spec: spec, anchor: a, bounds: bounds}
}

// slotStart is the wall-clock start of the slot at zero-based index i.
func (c *Clock) slotStart(spec Spec, a anchor, i int) time.Time {
	switch spec.Step {
	case StepMinutes:
		return time.Date(a.year, a.month, a.day, a.hour, i*spec.StepSize, 0, 0, c.loc)
	case StepDays:
		return time.Date(a.year, a.month, a.day+i*spec.StepSize, a.hour, 0, 0, 0, c.loc)
	default:
		return time.Date(a.year, a.month+time.Month(i*spec.StepSize), a.day, a.hour, 0, 0, 0, c.loc)
	}
}

type period struct {
	spec   Spec
	anchor anchor
	bounds []time.Time
}

func (p period) start() time.Time { return p.bounds[0] }
func (p period) end() time.Time   { return p.bounds[len(p.bounds)-1] }

func (p period) slot(n int) Slot {
	return Slot{
		Duration: p.spec.Key,
		Number:   n,
		Start:    p.bounds[n-1],
		End:      p.bounds[n],
	}
}

// numberAt returns the last slot starting at or before t. Empty slots share
// their start with the following slot, so they are never chosen.
func (p period) numberAt(t time.Time) int {
	for n := p.spec.SlotCount; n > 1; n-- {
		if !p.bounds[n-1].After(t) {
			return n
		}
	}
	return 1
}
