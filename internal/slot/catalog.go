// Package slot partitions calendar time into the numbered prediction slots of
// each supported duration and decides when a slot stops accepting
// submissions.
package slot

import (
	"fmt"
	"slices"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// PeriodKind is the recurring calendar period a duration's slots tile.
type PeriodKind int

const (
	// PeriodHours tiles the local day in blocks of PeriodSpan hours.
	PeriodHours PeriodKind = iota
	// PeriodWeek starts at Monday 00:00 local time.
	PeriodWeek
	// PeriodMonths spans PeriodSpan calendar months aligned to January.
	PeriodMonths
)

// StepUnit is the wall-clock unit slot boundaries advance in.
type StepUnit int

const (
	StepMinutes StepUnit = iota
	StepDays
	StepMonths
)

// Spec describes one duration: its period, how its slots step through the
// period, and the points each slot is worth.
type Spec struct {
	Key        string
	SlotCount  int
	Period     PeriodKind
	PeriodSpan int
	Step       StepUnit
	StepSize   int
	// Points is indexed by slot number - 1 and never increases.
	Points []int
}

// PointsFor returns the base points of slot n.
func (s Spec) PointsFor(n int) (int, error) {
	if n < 1 || n > s.SlotCount {
		return 0, fmt.Errorf("%w: slot %d out of range 1-%d for %s", domain.ErrInvalidSlot, n, s.SlotCount, s.Key)
	}
	return s.Points[n-1], nil
}

// PenaltyFor returns the penalty of slot n.
func (s Spec) PenaltyFor(n int) (int, error) {
	p, err := s.PointsFor(n)
	if err != nil {
		return 0, err
	}
	return Penalty(p), nil
}

// Penalty is half the base points rounded down, and at least 1.
func Penalty(points int) int {
	return max(1, points/2)
}

var catalog = []Spec{
	{Key: "1h", SlotCount: 4, Period: PeriodHours, PeriodSpan: 1, Step: StepMinutes, StepSize: 15, Points: []int{10, 5, 2, 1}},
	{Key: "4h", SlotCount: 4, Period: PeriodHours, PeriodSpan: 4, Step: StepMinutes, StepSize: 60, Points: []int{15, 10, 5, 2}},
	{Key: "6h", SlotCount: 6, Period: PeriodHours, PeriodSpan: 6, Step: StepMinutes, StepSize: 60, Points: []int{18, 12, 8, 5, 3, 1}},
	{Key: "12h", SlotCount: 4, Period: PeriodHours, PeriodSpan: 12, Step: StepMinutes, StepSize: 180, Points: []int{20, 12, 6, 3}},
	{Key: "24h", SlotCount: 8, Period: PeriodHours, PeriodSpan: 24, Step: StepMinutes, StepSize: 180, Points: []int{30, 20, 14, 9, 6, 4, 2, 1}},
	{Key: "1w", SlotCount: 7, Period: PeriodWeek, PeriodSpan: 1, Step: StepDays, StepSize: 1, Points: []int{50, 40, 30, 20, 10, 5, 2}},
	{Key: "1mo", SlotCount: 4, Period: PeriodMonths, PeriodSpan: 1, Step: StepDays, StepSize: 7, Points: []int{80, 50, 30, 15}},
	{Key: "3mo", SlotCount: 3, Period: PeriodMonths, PeriodSpan: 3, Step: StepMonths, StepSize: 1, Points: []int{100, 60, 30}},
	{Key: "6mo", SlotCount: 6, Period: PeriodMonths, PeriodSpan: 6, Step: StepMonths, StepSize: 1, Points: []int{120, 80, 50, 30, 15, 5}},
	{Key: "1y", SlotCount: 4, Period: PeriodMonths, PeriodSpan: 12, Step: StepMonths, StepSize: 3, Points: []int{150, 100, 50, 20}},
}

var byKey = func() map[string]Spec {
	m := make(map[string]Spec, len(catalog))
	for _, s := range catalog {
		m[s.Key] = s
	}
	return m
}()

// Lookup returns the spec for key, or domain.ErrUnknownDuration.
func Lookup(key string) (Spec, error) {
	s, ok := byKey[key]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", domain.ErrUnknownDuration, key)
	}
	s.Points = slices.Clone(s.Points)
	return s, nil
}

// Durations returns every spec in catalog order.
func Durations() []Spec {
	out := make([]Spec, len(catalog))
	for i, s := range catalog {
		s.Points = slices.Clone(s.Points)
		out[i] = s
	}
	return out
}

// Keys returns the duration keys in catalog order.
func Keys() []string {
	keys := make([]string, len(catalog))
	for i, s := range catalog {
		keys[i] = s.Key
	}
	return keys
}
