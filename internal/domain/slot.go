package domain

import "time"

// SlotConfig is the persisted configuration row of one (duration, slot).
type SlotConfig struct {
	Duration        string
	SlotNumber      int
	StartLabel      string
	EndLabel        string
	PointsIfCorrect int
	PenaltyIfWrong  int
	UpdatedAt       time.Time
}
