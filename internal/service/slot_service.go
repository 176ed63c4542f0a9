package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/slot"
)

// SlotInfo is a slot together with its configuration and lock state.
type SlotInfo struct {
	Duration   string
	Number     int
	Start      time.Time
	End        time.Time
	StartLabel string
	EndLabel   string
	Points     int
	Penalty    int
	Lock       slot.LockStatus
}

// Validation is the answer to "may a prediction target this slot now?".
type Validation struct {
	Valid  bool
	Reason string
	Slot   *SlotInfo
}

// Validation reasons.
const (
	ReasonOutOfRange = "slot number out of range"
	ReasonEnded      = "slot has already ended"
	ReasonStarted    = "slot has already started"
	ReasonLocked     = "slot is locked for new predictions"
	ReasonSkipped    = "slot does not occur in this period"
)

// SlotService answers slot queries and manages the persisted slot
// configuration.
type SlotService struct {
	clock   *slot.Clock
	gate    *slot.Gate
	configs domain.SlotConfigStore
	audit   domain.AuditStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewSlotService creates a SlotService. audit may be nil.
func NewSlotService(
	clock *slot.Clock,
	gate *slot.Gate,
	configs domain.SlotConfigStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SlotService {
	return &SlotService{
		clock:   clock,
		gate:    gate,
		configs: configs,
		audit:   audit,
		logger:  logger.With(slog.String("component", "slot_service")),
		now:     time.Now,
	}
}

// Clock returns the reference slot clock.
func (s *SlotService) Clock() *slot.Clock {
	return s.clock
}

// PointsFor returns the points and penalty of slot n of duration. The
// persisted row wins; the catalog is the fallback when the row is missing.
func (s *SlotService) PointsFor(ctx context.Context, duration string, n int) (int, int, error) {
	spec, err := slot.Lookup(duration)
	if err != nil {
		return 0, 0, err
	}
	if s.configs != nil {
		cfg, err := s.configs.Get(ctx, duration, n)
		switch {
		case err == nil:
			return cfg.PointsIfCorrect, max(1, cfg.PenaltyIfWrong), nil
		case !errors.Is(err, domain.ErrNotFound):
			return 0, 0, fmt.Errorf("slot_service: load config %s/%d: %w", duration, n, err)
		}
	}
	points, err := spec.PointsFor(n)
	if err != nil {
		return 0, 0, err
	}
	penalty, _ := spec.PenaltyFor(n)
	return points, penalty, nil
}

func (s *SlotService) info(ctx context.Context, sl slot.Slot, now time.Time) (SlotInfo, error) {
	spec, err := slot.Lookup(sl.Duration)
	if err != nil {
		return SlotInfo{}, err
	}
	points, penalty, err := s.PointsFor(ctx, sl.Duration, sl.Number)
	if err != nil {
		return SlotInfo{}, err
	}
	startLabel, endLabel := slot.Labels(spec, sl.Number)
	loc := s.clock.Location()
	return SlotInfo{
		Duration:   sl.Duration,
		Number:     sl.Number,
		Start:      sl.Start.In(loc),
		End:        sl.End.In(loc),
		StartLabel: startLabel,
		EndLabel:   endLabel,
		Points:     points,
		Penalty:    penalty,
		Lock:       s.gate.Status(sl, now),
	}, nil
}

// Active returns the slot of duration that contains now.
func (s *SlotService) Active(ctx context.Context, duration string, now time.Time) (SlotInfo, error) {
	sl, err := s.clock.SlotAt(now, duration)
	if err != nil {
		return SlotInfo{}, err
	}
	return s.info(ctx, sl, now)
}

// Upcoming returns the current and future slots of the current period of
// duration. Slots removed by a DST gap are left out.
func (s *SlotService) Upcoming(ctx context.Context, duration string) ([]SlotInfo, error) {
	now := s.now()
	slots, err := s.clock.Slots(duration, now)
	if err != nil {
		return nil, err
	}

	out := make([]SlotInfo, 0, len(slots))
	for _, sl := range slots {
		if sl.Empty() || !sl.End.After(now) {
			continue
		}
		info, err := s.info(ctx, sl, now)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Validate checks whether slot n of the current period of duration may be
// booked now. Unknown durations are errors; every other failure is reported
// through Validation.Reason.
func (s *SlotService) Validate(ctx context.Context, duration string, n int) (Validation, error) {
	spec, err := slot.Lookup(duration)
	if err != nil {
		return Validation{}, err
	}
	if n < 1 || n > spec.SlotCount {
		return Validation{Reason: ReasonOutOfRange}, nil
	}

	now := s.now()
	sl, err := s.clock.SlotInPeriod(duration, n, now)
	if err != nil {
		return Validation{}, err
	}
	info, err := s.info(ctx, sl, now)
	if err != nil {
		return Validation{}, err
	}

	v := Validation{Slot: &info}
	switch {
	case sl.Empty():
		v.Reason = ReasonSkipped
	case !sl.End.After(now):
		v.Reason = ReasonEnded
	case !sl.Start.After(now):
		v.Reason = ReasonStarted
	case info.Lock.Locked:
		v.Reason = ReasonLocked
	default:
		v.Valid = true
	}
	return v, nil
}

// SeedConfigs writes the catalog defaults when no configuration exists yet.
func (s *SlotService) SeedConfigs(ctx context.Context) (int, error) {
	n, err := s.configs.SeedIfEmpty(ctx, slot.DefaultConfigs())
	if err != nil {
		return 0, fmt.Errorf("slot_service: seed configs: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "slot_service: seeded slot configs", slog.Int("rows", n))
	}
	return n, nil
}

// ListConfigs returns every configuration row, or those of one duration when
// duration is non-empty.
func (s *SlotService) ListConfigs(ctx context.Context, duration string) ([]domain.SlotConfig, error) {
	if duration == "" {
		return s.configs.List(ctx)
	}
	if _, err := slot.Lookup(duration); err != nil {
		return nil, err
	}
	return s.configs.ListByDuration(ctx, duration)
}

// UpdateConfig changes the points and penalty of one slot. Penalties below
// one are rejected so a wrong call always costs something.
func (s *SlotService) UpdateConfig(ctx context.Context, duration string, n, points, penalty int) (domain.SlotConfig, error) {
	spec, err := slot.Lookup(duration)
	if err != nil {
		return domain.SlotConfig{}, err
	}
	if n < 1 || n > spec.SlotCount {
		return domain.SlotConfig{}, fmt.Errorf("%w: slot %d out of range 1-%d", domain.ErrInvalidSlot, n, spec.SlotCount)
	}
	if points < 0 || penalty < 1 {
		return domain.SlotConfig{}, fmt.Errorf("%w: points must be >= 0 and penalty >= 1", domain.ErrInvalidOverride)
	}

	cfg, err := s.configs.UpdatePoints(ctx, duration, n, points, penalty)
	if err != nil {
		return domain.SlotConfig{}, fmt.Errorf("slot_service: update %s/%d: %w", duration, n, err)
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "slot_config.updated", map[string]any{
			"duration": duration, "slot_number": n, "points": points, "penalty": penalty,
		}); err != nil {
			s.logger.WarnContext(ctx, "slot_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "slot_service: slot config updated",
		slog.String("duration", duration),
		slog.Int("slot_number", n),
		slog.Int("points", points),
		slog.Int("penalty", penalty),
	)
	return cfg, nil
}
