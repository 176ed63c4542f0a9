// Package scoring decides whether a prediction was right and how many points
// it earns.
package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// ErrInvalidPrice is returned when the entry price cannot be used as a base
// for a percentage change.
var ErrInvalidPrice = errors.New("scoring: entry price must be positive")

var hundred = decimal.NewFromInt(100)

// bonusBands are checked tightest first. Upper bounds are inclusive.
var bonusBands = []struct {
	maxPct decimal.Decimal
	bonus  int
}{
	{decimal.RequireFromString("0.1"), 10},
	{decimal.RequireFromString("0.5"), 5},
	{decimal.RequireFromString("1.0"), 2},
}

// Outcome is the scored result of one prediction.
type Outcome struct {
	Result    domain.PredictionResult
	Points    int
	Bonus     int
	ChangePct decimal.Decimal
}

// IsCorrect applies the direction rule. An unchanged price is wrong for both
// directions.
func IsCorrect(dir domain.Direction, start, end decimal.Decimal) bool {
	if dir == domain.DirectionUp {
		return end.GreaterThan(start)
	}
	return end.LessThan(start)
}

// ChangePct returns |end-start| / start * 100.
func ChangePct(start, end decimal.Decimal) (decimal.Decimal, error) {
	if !start.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return end.Sub(start).Abs().Div(start).Mul(hundred), nil
}

// AccuracyBonus returns the bonus for a correct call that moved pct percent.
func AccuracyBonus(pct decimal.Decimal) int {
	for _, b := range bonusBands {
		if pct.LessThanOrEqual(b.maxPct) {
			return b.bonus
		}
	}
	return 0
}

// Score evaluates a prediction. A correct call earns base plus the accuracy
// bonus; a wrong one loses penalty points.
func Score(dir domain.Direction, start, end decimal.Decimal, base, penalty int) (Outcome, error) {
	if !dir.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
	}
	pct, err := ChangePct(start, end)
	if err != nil {
		return Outcome{}, err
	}
	if !IsCorrect(dir, start, end) {
		return Outcome{
			Result:    domain.ResultIncorrect,
			Points:    -max(1, penalty),
			ChangePct: pct,
		}, nil
	}
	bonus := AccuracyBonus(pct)
	return Outcome{
		Result:    domain.ResultCorrect,
		Points:    base + bonus,
		Bonus:     bonus,
		ChangePct: pct,
	}, nil
}
