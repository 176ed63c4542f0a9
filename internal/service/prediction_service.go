package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/metrics"
	"github.com/alanyoungcy/trendslot/internal/slot"
)

// CreateRequest is a user's prediction submission.
type CreateRequest struct {
	UserID      string
	AssetSymbol string
	Direction   domain.Direction
	Duration    string
}

// PredictionService creates predictions and serves them back to their owners.
type PredictionService struct {
	predictions domain.PredictionStore
	users       domain.UserStore
	assets      domain.AssetStore
	scores      domain.UserScoreStore
	oracle      domain.PriceOracle
	clock       *slot.Clock
	gate        *slot.Gate
	metrics     *metrics.Manager
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewPredictionService creates a PredictionService with all required
// dependencies.
func NewPredictionService(
	predictions domain.PredictionStore,
	users domain.UserStore,
	assets domain.AssetStore,
	scores domain.UserScoreStore,
	oracle domain.PriceOracle,
	clock *slot.Clock,
	gate *slot.Gate,
	m *metrics.Manager,
	logger *slog.Logger,
) *PredictionService {
	return &PredictionService{
		predictions: predictions,
		users:       users,
		assets:      assets,
		scores:      scores,
		oracle:      oracle,
		clock:       clock,
		gate:        gate,
		metrics:     m,
		logger:      logger.With(slog.String("component", "prediction_service")),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Create validates and stores a new prediction on the next slot of the
// requested duration. Checks run in a fixed order and each one fails with its
// own sentinel error.
func (s *PredictionService) Create(ctx context.Context, req CreateRequest) (domain.Prediction, error) {
	p, err := s.create(ctx, req)
	if err != nil {
		s.metrics.PredictionRejected(domain.Code(err))
		return domain.Prediction{}, err
	}
	s.metrics.PredictionCreated(p.Duration)
	return p, nil
}

func (s *PredictionService) create(ctx context.Context, req CreateRequest) (domain.Prediction, error) {
	spec, err := slot.Lookup(req.Duration)
	if err != nil {
		return domain.Prediction{}, err
	}
	if !req.Direction.Valid() {
		return domain.Prediction{}, fmt.Errorf("%w: %q", domain.ErrInvalidDirection, req.Direction)
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Prediction{}, fmt.Errorf("%w: unknown user", domain.ErrUnverifiedUser)
	case err != nil:
		return domain.Prediction{}, fmt.Errorf("prediction_service: load user %s: %w", req.UserID, err)
	case !user.EmailVerified:
		return domain.Prediction{}, fmt.Errorf("%w: email not verified", domain.ErrUnverifiedUser)
	}

	asset, err := s.assets.GetBySymbol(ctx, strings.TrimSpace(req.AssetSymbol))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Prediction{}, fmt.Errorf("%w: unknown asset %q", domain.ErrAssetUnavailable, req.AssetSymbol)
	case err != nil:
		return domain.Prediction{}, fmt.Errorf("prediction_service: load asset %s: %w", req.AssetSymbol, err)
	case !asset.Active:
		return domain.Prediction{}, fmt.Errorf("%w: %s is not active", domain.ErrAssetUnavailable, asset.Symbol)
	}

	now := s.now()
	target, err := s.clock.Next(now, spec.Key)
	if err != nil {
		return domain.Prediction{}, err
	}
	if target.Number < 1 || target.Number > spec.SlotCount || !target.End.After(now) {
		return domain.Prediction{}, fmt.Errorf("%w: slot %d of %s ends at %s", domain.ErrInvalidSlot,
			target.Number, spec.Key, target.End.Format(time.RFC3339))
	}

	p := domain.Prediction{
		UserID:      user.ID,
		AssetID:     asset.ID,
		AssetSymbol: asset.Symbol,
		Direction:   req.Direction,
		Duration:    spec.Key,
		SlotNumber:  target.Number,
		SlotStart:   target.Start.UTC(),
		SlotEnd:     target.End.UTC(),
		ExpiresAt:   target.End.UTC(),
		Status:      domain.PredictionActive,
		Result:      domain.ResultPending,
	}

	exists, err := s.predictions.ExistsActive(ctx, p.Key())
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: check duplicate: %w", err)
	}
	if exists {
		return domain.Prediction{}, fmt.Errorf("%w: %s slot %d on %s", domain.ErrDuplicatePrediction,
			spec.Key, target.Number, asset.Symbol)
	}

	if s.gate.IsLocked(target, now) {
		return domain.Prediction{}, fmt.Errorf("%w: %s slot %d starts in %s", domain.ErrSlotLocked,
			spec.Key, target.Number, target.Start.Sub(now).Round(time.Second))
	}

	quote, err := s.oracle.Quote(ctx, asset)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			return domain.Prediction{}, err
		}
		return domain.Prediction{}, fmt.Errorf("%w: %w", domain.ErrPriceUnavailable, err)
	}

	p.ID = s.newID()
	p.CreatedAt = now.UTC()
	p.PriceStart = quote.Price

	if err := s.predictions.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Prediction{}, fmt.Errorf("%w: %s slot %d on %s", domain.ErrDuplicatePrediction,
				spec.Key, target.Number, asset.Symbol)
		}
		return domain.Prediction{}, fmt.Errorf("prediction_service: store prediction: %w", err)
	}

	// The aggregate is eventually consistent; the prediction row is the
	// source of truth.
	if err := s.scores.IncrementSubmitted(ctx, user.ID, s.clock.Month(now)); err != nil {
		s.metrics.ScoreIncrementFailed()
		s.logger.WarnContext(ctx, "prediction_service: increment submitted failed",
			slog.String("user_id", user.ID),
			slog.String("prediction_id", p.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "prediction_service: prediction created",
		slog.String("prediction_id", p.ID),
		slog.String("user_id", user.ID),
		slog.String("asset", asset.Symbol),
		slog.String("duration", spec.Key),
		slog.Int("slot_number", p.SlotNumber),
		slog.String("direction", string(p.Direction)),
		slog.String("price_start", p.PriceStart.String()),
		slog.String("quote_source", string(quote.Source)),
	)
	return p, nil
}

// Get returns one prediction.
func (s *PredictionService) Get(ctx context.Context, id string) (domain.Prediction, error) {
	p, err := s.predictions.GetByID(ctx, id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: get %s: %w", id, err)
	}
	return p, nil
}

// ListForUser returns a user's predictions, newest first.
func (s *PredictionService) ListForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	ps, err := s.predictions.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: list for %s: %w", userID, err)
	}
	return ps, nil
}
