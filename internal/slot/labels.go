package slot

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// Labels returns the period-relative start and end labels of slot n, e.g.
// "+0:15" for sub-daily periods, "06:00" for the day, "Tuesday" for the week
// and "Q3" for the year.
func Labels(spec Spec, n int) (string, string) {
	i := n - 1
	last := n == spec.SlotCount
	switch {
	case spec.Period == PeriodHours && spec.PeriodSpan == 24:
		return clockLabel(i * spec.StepSize), clockLabel(n * spec.StepSize)
	case spec.Period == PeriodHours:
		return offsetLabel(i * spec.StepSize), offsetLabel(n * spec.StepSize)
	case spec.Period == PeriodWeek:
		day := time.Weekday((i + 1) % 7).String()
		return day, day
	case spec.Step == StepDays:
		start := fmt.Sprintf("Day %d", i*spec.StepSize+1)
		if last {
			return start, "End of month"
		}
		return start, fmt.Sprintf("Day %d", n*spec.StepSize)
	case spec.PeriodSpan == 12 && spec.StepSize == 3:
		q := fmt.Sprintf("Q%d", n)
		return q, q
	default:
		return fmt.Sprintf("Month %d", i*spec.StepSize+1), fmt.Sprintf("Month %d", n*spec.StepSize)
	}
}

func clockLabel(minutes int) string {
	if minutes >= 24*60 {
		return "24:00"
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func offsetLabel(minutes int) string {
	return fmt.Sprintf("+%d:%02d", minutes/60, minutes%60)
}

// DefaultConfigs returns one configuration row per (duration, slot) built
// from the catalog. They seed an empty slot configuration table.
func DefaultConfigs() []domain.SlotConfig {
	var rows []domain.SlotConfig
	for _, spec := range catalog {
		for n := 1; n <= spec.SlotCount; n++ {
			start, end := Labels(spec, n)
			points := spec.Points[n-1]
			rows = append(rows, domain.SlotConfig{
				Duration:        spec.Key,
				SlotNumber:      n,
				StartLabel:      start,
				EndLabel:        end,
				PointsIfCorrect: points,
				PenaltyIfWrong:  Penalty(points),
			})
		}
	}
	return rows
}
