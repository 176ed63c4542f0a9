package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MaturedCursor marks the last prediction of a ListMatured page. The zero
// value starts from the oldest matured prediction.
type MaturedCursor struct {
	ExpiresAt time.Time
	ID        string
}

// IsZero reports whether c starts from the beginning.
func (c MaturedCursor) IsZero() bool { return c.ExpiresAt.IsZero() && c.ID == "" }

// CursorAt returns the cursor positioned on p.
func CursorAt(p Prediction) MaturedCursor {
	return MaturedCursor{ExpiresAt: p.ExpiresAt, ID: p.ID}
}

// PredictionStore persists predictions.
type PredictionStore interface {
	// Create inserts an active prediction. It returns ErrAlreadyExists when an
	// active prediction with the same SlotKey exists.
	Create(ctx context.Context, p Prediction) error
	GetByID(ctx context.Context, id string) (Prediction, error)
	ExistsActive(ctx context.Context, key SlotKey) (bool, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Prediction, error)
	// ListMatured returns active predictions with expires_at <= now ordered by
	// (expires_at, id), starting strictly after the cursor.
	ListMatured(ctx context.Context, now time.Time, after MaturedCursor, limit int) ([]Prediction, error)
	// ListEvaluated returns evaluated predictions settled in [since, until).
	ListEvaluated(ctx context.Context, since, until time.Time) ([]Prediction, error)
	// Settle applies s to the prediction only if it is still active and adds
	// the score delta to the owner's aggregate in the same transaction. It
	// returns ErrNotActive when the prediction was already settled.
	Settle(ctx context.Context, s Settlement) (SettleOutcome, error)
}

// SlotConfigStore persists slot configuration rows.
type SlotConfigStore interface {
	// SeedIfEmpty inserts rows only when the table holds none. It returns the
	// number of rows inserted.
	SeedIfEmpty(ctx context.Context, rows []SlotConfig) (int, error)
	Get(ctx context.Context, duration string, slotNumber int) (SlotConfig, error)
	ListByDuration(ctx context.Context, duration string) ([]SlotConfig, error)
	List(ctx context.Context) ([]SlotConfig, error)
	UpdatePoints(ctx context.Context, duration string, slotNumber, points, penalty int) (SlotConfig, error)
}

// UserStore reads user accounts.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
}

// AssetStore persists the asset catalogue.
type AssetStore interface {
	GetBySymbol(ctx context.Context, symbol string) (Asset, error)
	GetByID(ctx context.Context, id string) (Asset, error)
	Upsert(ctx context.Context, a Asset) error
	ListActive(ctx context.Context) ([]Asset, error)
}

// UserScoreStore maintains per-user score aggregates with atomic increments.
type UserScoreStore interface {
	IncrementSubmitted(ctx context.Context, userID, month string) error
	Get(ctx context.Context, userID string) (UserScore, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
