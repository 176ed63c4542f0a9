package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a prediction.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// PredictionStatus tracks the lifecycle. The only transition is
// active -> evaluated.
type PredictionStatus string

const (
	PredictionActive    PredictionStatus = "active"
	PredictionEvaluated PredictionStatus = "evaluated"
)

// PredictionResult is the outcome of an evaluation.
type PredictionResult string

const (
	ResultPending   PredictionResult = "pending"
	ResultCorrect   PredictionResult = "correct"
	ResultIncorrect PredictionResult = "incorrect"
)

// EvaluationSource records which path settled a prediction.
type EvaluationSource string

const (
	EvaluatedBySweep  EvaluationSource = "sweep"
	EvaluatedByManual EvaluationSource = "manual"
	EvaluatedByAdmin  EvaluationSource = "admin"
)

// Prediction is one user's directional call on an asset for one slot.
type Prediction struct {
	ID            string
	UserID        string
	AssetID       string
	AssetSymbol   string
	Direction     Direction
	Duration      string
	SlotNumber    int
	SlotStart     time.Time
	SlotEnd       time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Status        PredictionStatus
	Result        PredictionResult
	PointsAwarded *int
	PriceStart    decimal.Decimal
	PriceEnd      *decimal.Decimal
	EvaluatedAt   *time.Time
	EvaluatedBy   EvaluationSource
}

// Matured reports whether the prediction may be evaluated at now.
func (p Prediction) Matured(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// SlotKey identifies the (user, asset, duration, slot) tuple that may hold at
// most one active prediction.
type SlotKey struct {
	UserID     string
	AssetID    string
	Duration   string
	SlotNumber int
	SlotStart  time.Time
}

// Key returns the prediction's slot key.
func (p Prediction) Key() SlotKey {
	return SlotKey{
		UserID:     p.UserID,
		AssetID:    p.AssetID,
		Duration:   p.Duration,
		SlotNumber: p.SlotNumber,
		SlotStart:  p.SlotStart,
	}
}

// Settlement is the terminal update applied to an active prediction together
// with the owner's score delta.
type Settlement struct {
	PredictionID string
	UserID       string
	Result       PredictionResult
	Points       int
	PriceEnd     *decimal.Decimal
	EvaluatedAt  time.Time
	EvaluatedBy  EvaluationSource
	// ScoreMonth is the reference-zone month (YYYY-MM) the points count
	// towards for the monthly score.
	ScoreMonth string
}

// Correct reports whether the settlement counts as a correct call.
func (s Settlement) Correct() bool {
	return s.Result == ResultCorrect
}

// SettleOutcome reports side effects of a settlement.
type SettleOutcome struct {
	Prediction Prediction
	// ScoreRowCreated is true when no aggregate row existed for the user and
	// one had to be inserted during settlement.
	ScoreRowCreated bool
}
