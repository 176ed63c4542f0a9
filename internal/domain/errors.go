package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Prediction lifecycle errors. Each one is surfaced to API callers with
	// its own error code.
	ErrUnknownDuration     = errors.New("unknown duration")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrUnverifiedUser      = errors.New("user is not verified")
	ErrAssetUnavailable    = errors.New("asset unavailable")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrDuplicatePrediction = errors.New("duplicate prediction")
	ErrSlotLocked          = errors.New("slot locked")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrNotActive           = errors.New("prediction not active")
	ErrNotMatured          = errors.New("prediction not matured")
	ErrInvalidOverride     = errors.New("invalid override")
)

// codes maps sentinel errors to the stable identifiers returned to API
// clients and used as metric labels.
var codes = []struct {
	err  error
	code string
}{
	{ErrUnknownDuration, "unknown_duration"},
	{ErrInvalidDirection, "invalid_direction"},
	{ErrUnverifiedUser, "unverified_user"},
	{ErrAssetUnavailable, "asset_unavailable"},
	{ErrInvalidSlot, "invalid_slot"},
	{ErrDuplicatePrediction, "duplicate_prediction"},
	{ErrSlotLocked, "slot_locked"},
	{ErrPriceUnavailable, "price_unavailable"},
	{ErrNotActive, "not_active"},
	{ErrNotMatured, "not_matured"},
	{ErrInvalidOverride, "invalid_override"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrRateLimited, "rate_limited"},
	{ErrUnauthorized, "unauthorized"},
	{ErrLockHeld, "lock_held"},
}

// Code returns the identifier of the first sentinel err wraps, or
// "internal" when it wraps none.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
