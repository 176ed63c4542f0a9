package domain

import "time"

// User is the subset of account data the prediction engine reads.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
}

// Asset is a tradable symbol users can predict on.
type Asset struct {
	ID     string
	Symbol string
	Name   string
	// FeedSymbol is the symbol sent to the live price feed, e.g. "BTCUSDT".
	FeedSymbol string
	Active     bool
	UpdatedAt  time.Time
}

// UserScore holds a user's running score totals.
type UserScore struct {
	UserID               string
	TotalPredictions     int64
	CorrectPredictions   int64
	EvaluatedPredictions int64
	MonthlyScore         int64
	ScoreMonth           string
	TotalScore           int64
	UpdatedAt            time.Time
}
