package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/metrics"
	"github.com/alanyoungcy/trendslot/internal/notify"
	"github.com/alanyoungcy/trendslot/internal/scoring"
	"github.com/alanyoungcy/trendslot/internal/slot"
)

// sweepLockKey names the distributed lock held for one evaluation sweep.
const sweepLockKey = "evaluate-predictions"

// PointsSource resolves the points and penalty of a slot.
type PointsSource interface {
	PointsFor(ctx context.Context, duration string, n int) (points, penalty int, err error)
}

// Alerter delivers operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EvaluatorConfig tunes the evaluation sweep.
type EvaluatorConfig struct {
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
}

// SweepReport summarises one evaluation sweep.
type SweepReport struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	// Skipped is set when another replica holds the sweep lock.
	Skipped   bool `json:"skipped"`
	Batches   int  `json:"batches"`
	Matured   int  `json:"matured"`
	Settled   int  `json:"settled"`
	Correct   int  `json:"correct"`
	Incorrect int  `json:"incorrect"`
	Conflicts int  `json:"conflicts"`
	Failed    int  `json:"failed"`
}

func (r SweepReport) outcome() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// AdminOverride is an administrator-imposed settlement. Points defaults to
// the slot's points for a correct result and minus its penalty otherwise.
type AdminOverride struct {
	Result   domain.PredictionResult
	Points   *int
	PriceEnd *decimal.Decimal
}

// Evaluator settles matured predictions.
type Evaluator struct {
	predictions domain.PredictionStore
	assets      domain.AssetStore
	oracle      domain.PriceOracle
	points      PointsSource
	clock       *slot.Clock
	locks       domain.LockManager
	audit       domain.AuditStore
	alerts      Alerter
	cfg         EvaluatorConfig
	metrics     *metrics.Manager
	logger      *slog.Logger
	now         func() time.Time
}

// NewEvaluator creates an Evaluator. locks, audit and alerts may be nil.
func NewEvaluator(
	predictions domain.PredictionStore,
	assets domain.AssetStore,
	oracle domain.PriceOracle,
	points PointsSource,
	clock *slot.Clock,
	locks domain.LockManager,
	audit domain.AuditStore,
	alerts Alerter,
	cfg EvaluatorConfig,
	m *metrics.Manager,
	logger *slog.Logger,
) *Evaluator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Evaluator{
		predictions: predictions,
		assets:      assets,
		oracle:      oracle,
		points:      points,
		clock:       clock,
		locks:       locks,
		audit:       audit,
		alerts:      alerts,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With(slog.String("component", "evaluator")),
		now:         time.Now,
	}
}

// EvaluateExpired settles every matured active prediction. Records are
// independent: a failure is logged, counted and left active for the next
// sweep. The returned error is reserved for failures that stop the sweep
// itself, such as the store being unreachable.
func (e *Evaluator) EvaluateExpired(ctx context.Context) (report SweepReport, err error) {
	report.StartedAt = e.now().UTC()
	defer func() {
		report.Elapsed = e.now().Sub(report.StartedAt)
		e.metrics.SweepFinished(report.outcome(), report.Matured, report.Elapsed)
	}()

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, sweepLockKey, e.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			report.Skipped = true
			e.logger.DebugContext(ctx, "evaluator: sweep already running elsewhere")
			return report, nil
		case err != nil:
			// The settlement guard keeps overlapping sweeps correct, so a lock
			// outage only costs duplicate work.
			e.logger.WarnContext(ctx, "evaluator: sweep lock unavailable, continuing without it",
				slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	var (
		mu     sync.Mutex
		cursor domain.MaturedCursor
	)

	for {
		now := e.now()
		batch, err := e.predictions.ListMatured(ctx, now, cursor, e.cfg.BatchSize)
		if err != nil {
			e.alertSweepFailure(ctx, err)
			return report, fmt.Errorf("evaluator: list matured: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		cursor = domain.CursorAt(batch[len(batch)-1])
		report.Batches++
		report.Matured += len(batch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Concurrency)
		for _, p := range batch {
			g.Go(func() error {
				out, err := e.settle(gctx, p, domain.EvaluatedBySweep, nil)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					report.Settled++
					if out.Prediction.Result == domain.ResultCorrect {
						report.Correct++
					} else {
						report.Incorrect++
					}
				case errors.Is(err, domain.ErrNotActive):
					report.Conflicts++
				default:
					report.Failed++
					e.metrics.EvaluationFailed()
					e.logger.WarnContext(gctx, "evaluator: prediction evaluation failed",
						slog.String("prediction_id", p.ID),
						slog.String("error", err.Error()),
					)
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("evaluator: sweep interrupted: %w", err)
		}
		if len(batch) < e.cfg.BatchSize {
			break
		}
	}

	if report.Failed > 0 {
		e.alertSweepFailure(ctx, fmt.Errorf("%d of %d matured predictions could not be settled", report.Failed, report.Matured))
	}
	if report.Matured > 0 {
		e.logger.InfoContext(ctx, "evaluator: sweep finished",
			slog.Int("matured", report.Matured),
			slog.Int("settled", report.Settled),
			slog.Int("correct", report.Correct),
			slog.Int("incorrect", report.Incorrect),
			slog.Int("conflicts", report.Conflicts),
			slog.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// EvaluateOne settles a single prediction on demand.
func (e *Evaluator) EvaluateOne(ctx context.Context, id string) (domain.Prediction, error) {
	p, err := e.predictions.GetByID(ctx, id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("evaluator: get %s: %w", id, err)
	}
	if p.Status != domain.PredictionActive {
		return domain.Prediction{}, fmt.Errorf("%w: %s is %s", domain.ErrNotActive, id, p.Status)
	}
	if now := e.now(); !p.Matured(now) {
		return domain.Prediction{}, fmt.Errorf("%w: %s expires in %s", domain.ErrNotMatured, id,
			p.ExpiresAt.Sub(now).Round(time.Second))
	}

	out, err := e.settle(ctx, p, domain.EvaluatedByManual, nil)
	if err != nil {
		return domain.Prediction{}, err
	}
	return out.Prediction, nil
}

// Override settles a prediction with an administrator-chosen result. No price
// lookup happens; the same guarded transition and aggregate delta apply.
func (e *Evaluator) Override(ctx context.Context, id string, o AdminOverride) (domain.Prediction, error) {
	if o.Result != domain.ResultCorrect && o.Result != domain.ResultIncorrect {
		return domain.Prediction{}, fmt.Errorf("%w: result must be correct or incorrect", domain.ErrInvalidOverride)
	}
	if o.Points != nil {
		if o.Result == domain.ResultCorrect && *o.Points < 0 {
			return domain.Prediction{}, fmt.Errorf("%w: a correct result cannot lose points", domain.ErrInvalidOverride)
		}
		if o.Result == domain.ResultIncorrect && *o.Points > 0 {
			return domain.Prediction{}, fmt.Errorf("%w: an incorrect result cannot earn points", domain.ErrInvalidOverride)
		}
	}
	if o.PriceEnd != nil && !o.PriceEnd.IsPositive() {
		return domain.Prediction{}, fmt.Errorf("%w: price_end must be positive", domain.ErrInvalidOverride)
	}

	p, err := e.predictions.GetByID(ctx, id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("evaluator: get %s: %w", id, err)
	}
	if p.Status != domain.PredictionActive {
		return domain.Prediction{}, fmt.Errorf("%w: %s is %s", domain.ErrNotActive, id, p.Status)
	}

	out, err := e.settle(ctx, p, domain.EvaluatedByAdmin, &o)
	if err != nil {
		return domain.Prediction{}, err
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, "prediction.override", map[string]any{
			"prediction_id": id,
			"result":        string(o.Result),
			"points":        *out.Prediction.PointsAwarded,
		}); err != nil {
			e.logger.WarnContext(ctx, "evaluator: audit log failed", slog.String("error", err.Error()))
		}
	}
	return out.Prediction, nil
}

// settle computes the outcome of p and applies it. A nil override means the
// outcome comes from the settlement price.
func (e *Evaluator) settle(ctx context.Context, p domain.Prediction, by domain.EvaluationSource, o *AdminOverride) (domain.SettleOutcome, error) {
	points, penalty, err := e.points.PointsFor(ctx, p.Duration, p.SlotNumber)
	if err != nil {
		return domain.SettleOutcome{}, fmt.Errorf("evaluator: points for %s/%d: %w", p.Duration, p.SlotNumber, err)
	}

	now := e.now()
	st := domain.Settlement{
		PredictionID: p.ID,
		UserID:       p.UserID,
		EvaluatedAt:  now.UTC(),
		EvaluatedBy:  by,
		ScoreMonth:   e.clock.Month(now),
	}

	if o != nil {
		st.Result = o.Result
		st.PriceEnd = o.PriceEnd
		switch {
		case o.Points != nil:
			st.Points = *o.Points
		case o.Result == domain.ResultCorrect:
			st.Points = points
		default:
			st.Points = -max(1, penalty)
		}
	} else {
		asset, err := e.assets.GetByID(ctx, p.AssetID)
		if err != nil {
			return domain.SettleOutcome{}, fmt.Errorf("evaluator: load asset %s: %w", p.AssetID, err)
		}
		quote, err := e.oracle.Quote(ctx, asset)
		if err != nil {
			return domain.SettleOutcome{}, err
		}
		outcome, err := scoring.Score(p.Direction, p.PriceStart, quote.Price, points, penalty)
		if err != nil {
			return domain.SettleOutcome{}, fmt.Errorf("evaluator: score %s: %w", p.ID, err)
		}
		st.Result = outcome.Result
		st.Points = outcome.Points
		st.PriceEnd = &quote.Price
	}

	out, err := e.predictions.Settle(ctx, st)
	if err != nil {
		if errors.Is(err, domain.ErrNotActive) {
			e.metrics.SettleConflict()
		}
		return domain.SettleOutcome{}, err
	}

	e.metrics.PredictionSettled(string(st.Result), string(by))
	if out.ScoreRowCreated {
		e.reportMissingScoreRow(ctx, p)
	}

	e.logger.InfoContext(ctx, "evaluator: prediction settled",
		slog.String("prediction_id", p.ID),
		slog.String("user_id", p.UserID),
		slog.String("result", string(st.Result)),
		slog.Int("points", st.Points),
		slog.String("source", string(by)),
	)
	return out, nil
}

// reportMissingScoreRow flags a settlement that had to create the owner's
// aggregate row. Creation-time seeding should have made it exist.
func (e *Evaluator) reportMissingScoreRow(ctx context.Context, p domain.Prediction) {
	e.metrics.ScoreRowAnomaly()
	e.logger.ErrorContext(ctx, "evaluator: score aggregate missing at settlement",
		slog.String("prediction_id", p.ID),
		slog.String("user_id", p.UserID),
	)
	if e.alerts == nil {
		return
	}
	msg := fmt.Sprintf("user %s had no score row when prediction %s was settled; the row was created", p.UserID, p.ID)
	if err := e.alerts.Notify(ctx, notify.EventScoreAnomaly, "Score aggregate anomaly", msg); err != nil {
		e.logger.WarnContext(ctx, "evaluator: alert failed", slog.String("error", err.Error()))
	}
}

func (e *Evaluator) alertSweepFailure(ctx context.Context, cause error) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Notify(ctx, notify.EventSweepFailed, "Evaluation sweep failed", cause.Error()); err != nil {
		e.logger.WarnContext(ctx, "evaluator: alert failed", slog.String("error", err.Error()))
	}
}
