package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
}

// NewPredictionStore creates a new PredictionStore backed by the given connection pool.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

// Numeric columns are read as text so decimal.Decimal keeps full precision.
const predictionCols = `id, user_id, asset_id, asset_symbol, direction, duration,
	slot_number, slot_start, slot_end, created_at, expires_at, status, result,
	points_awarded, price_start::text, price_end::text, evaluated_at, evaluated_by`

// scanPrediction scans a single prediction row into a domain.Prediction.
func scanPrediction(row pgx.Row) (domain.Prediction, error) {
	var (
		p                   domain.Prediction
		direction, status   string
		result, evaluatedBy string
		priceStart          string
		priceEnd            *string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.AssetID, &p.AssetSymbol, &direction, &p.Duration,
		&p.SlotNumber, &p.SlotStart, &p.SlotEnd, &p.CreatedAt, &p.ExpiresAt, &status, &result,
		&p.PointsAwarded, &priceStart, &priceEnd, &p.EvaluatedAt, &evaluatedBy,
	)
	if err != nil {
		return domain.Prediction{}, err
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PredictionStatus(status)
	p.Result = domain.PredictionResult(result)
	p.EvaluatedBy = domain.EvaluationSource(evaluatedBy)

	if p.PriceStart, err = decimal.NewFromString(priceStart); err != nil {
		return domain.Prediction{}, fmt.Errorf("parse price_start: %w", err)
	}
	if priceEnd != nil {
		end, err := decimal.NewFromString(*priceEnd)
		if err != nil {
			return domain.Prediction{}, fmt.Errorf("parse price_end: %w", err)
		}
		p.PriceEnd = &end
	}
	return p, nil
}

func collectPredictions(rows pgx.Rows, what string) ([]domain.Prediction, error) {
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return out, nil
}

// Create inserts an active prediction. The partial unique index on the slot
// key turns a concurrent duplicate into domain.ErrAlreadyExists.
func (s *PredictionStore) Create(ctx context.Context, p domain.Prediction) error {
	const query = `
		INSERT INTO predictions (
			id, user_id, asset_id, asset_symbol, direction, duration,
			slot_number, slot_start, slot_end, created_at, expires_at,
			status, result, price_start
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14::numeric
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.AssetID, p.AssetSymbol, string(p.Direction), p.Duration,
		p.SlotNumber, p.SlotStart, p.SlotEnd, p.CreatedAt, p.ExpiresAt,
		string(p.Status), string(p.Result), p.PriceStart.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create prediction %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create prediction %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a prediction by its primary key.
func (s *PredictionStore) GetByID(ctx context.Context, id string) (domain.Prediction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+predictionCols+` FROM predictions WHERE id = $1`, id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, domain.ErrNotFound
		}
		return domain.Prediction{}, fmt.Errorf("postgres: get prediction %s: %w", id, err)
	}
	return p, nil
}

// ExistsActive reports whether an active prediction holds key.
func (s *PredictionStore) ExistsActive(ctx context.Context, key domain.SlotKey) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM predictions
			WHERE user_id = $1 AND asset_id = $2 AND duration = $3
			  AND slot_number = $4 AND slot_start = $5 AND status = 'active'
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query,
		key.UserID, key.AssetID, key.Duration, key.SlotNumber, key.SlotStart,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check active prediction: %w", err)
	}
	return exists, nil
}

// ListByUser returns a user's predictions, newest first.
func (s *PredictionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error) {
	query, args := applyListOpts(
		`SELECT `+predictionCols+` FROM predictions WHERE user_id = $1`,
		[]any{userID}, "created_at", "created_at DESC", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions for %s: %w", userID, err)
	}
	return collectPredictions(rows, "user predictions")
}

// ListMatured returns active predictions whose expiry is at or before now,
// keyset-paged on (expires_at, id) so rows that stay active after a failed
// settlement do not hide the ones behind them.
func (s *PredictionStore) ListMatured(ctx context.Context, now time.Time, after domain.MaturedCursor, limit int) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionCols + ` FROM predictions
		WHERE status = 'active' AND expires_at <= $1`
	args := []any{now}
	if !after.IsZero() {
		query += ` AND (expires_at, id) > ($2, $3)`
		args = append(args, after.ExpiresAt, after.ID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY expires_at, id LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matured predictions: %w", err)
	}
	return collectPredictions(rows, "matured predictions")
}

// ListEvaluated returns predictions evaluated in [since, until).
func (s *PredictionStore) ListEvaluated(ctx context.Context, since, until time.Time) ([]domain.Prediction, error) {
	const query = `SELECT ` + predictionCols + ` FROM predictions
		WHERE status = 'evaluated' AND evaluated_at >= $1 AND evaluated_at < $2
		ORDER BY evaluated_at, id`

	rows, err := s.pool.Query(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list evaluated predictions: %w", err)
	}
	return collectPredictions(rows, "evaluated predictions")
}

// Settle moves an active prediction to evaluated and adds the score delta to
// the owner's aggregate in one transaction. The status guard in the UPDATE
// makes a second settlement of the same prediction a no-op that reports
// domain.ErrNotActive.
func (s *PredictionStore) Settle(ctx context.Context, st domain.Settlement) (domain.SettleOutcome, error) {
	const settle = `
		UPDATE predictions SET
			status         = 'evaluated',
			result         = $2,
			points_awarded = $3,
			price_end      = $4::numeric,
			evaluated_at   = $5,
			evaluated_by   = $6
		WHERE id = $1 AND status = 'active'
		RETURNING ` + predictionCols

	const addScore = `
		INSERT INTO user_scores (
			user_id, total_predictions, correct_predictions, evaluated_predictions,
			monthly_score, score_month, total_score, updated_at
		) VALUES ($1, 1, $2, 1, $3, $4, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_predictions     = user_scores.total_predictions + 1,
			correct_predictions   = user_scores.correct_predictions + EXCLUDED.correct_predictions,
			evaluated_predictions = user_scores.evaluated_predictions + 1,
			monthly_score         = CASE
				WHEN user_scores.score_month = EXCLUDED.score_month
				THEN user_scores.monthly_score + EXCLUDED.monthly_score
				ELSE EXCLUDED.monthly_score
			END,
			score_month           = EXCLUDED.score_month,
			total_score           = user_scores.total_score + EXCLUDED.total_score,
			updated_at            = NOW()
		RETURNING (xmax = 0)`

	var priceEnd *string
	if st.PriceEnd != nil {
		v := st.PriceEnd.String()
		priceEnd = &v
	}
	correct := 0
	if st.Correct() {
		correct = 1
	}

	var out domain.SettleOutcome
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, settle,
			st.PredictionID, string(st.Result), st.Points, priceEnd, st.EvaluatedAt, string(st.EvaluatedBy),
		)
		p, err := scanPrediction(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.missingOrSettled(ctx, tx, st.PredictionID)
			}
			return fmt.Errorf("update prediction: %w", err)
		}
		out.Prediction = p

		if err := tx.QueryRow(ctx, addScore,
			p.UserID, correct, st.Points, st.ScoreMonth,
		).Scan(&out.ScoreRowCreated); err != nil {
			return fmt.Errorf("update user score: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotActive) || errors.Is(err, domain.ErrNotFound) {
			return domain.SettleOutcome{}, err
		}
		return domain.SettleOutcome{}, fmt.Errorf("postgres: settle prediction %s: %w", st.PredictionID, err)
	}
	return out, nil
}

// missingOrSettled distinguishes an unknown id from one that is no longer
// active after the guarded UPDATE matched nothing.
func (s *PredictionStore) missingOrSettled(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM predictions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check prediction: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %s", domain.ErrNotActive, id)
}

// Compile-time interface check.
var _ domain.PredictionStore = (*PredictionStore)(nil)
