package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// UserScoreStore implements domain.UserScoreStore using PostgreSQL. Every
// change is a single upsert so concurrent updates never lose increments.
type UserScoreStore struct {
	pool *pgxpool.Pool
}

// NewUserScoreStore creates a new UserScoreStore backed by the given connection pool.
func NewUserScoreStore(pool *pgxpool.Pool) *UserScoreStore {
	return &UserScoreStore{pool: pool}
}

// IncrementSubmitted counts a new prediction for userID, creating the row on
// first use. A new month resets the monthly score.
func (s *UserScoreStore) IncrementSubmitted(ctx context.Context, userID, month string) error {
	const query = `
		INSERT INTO user_scores (user_id, total_predictions, score_month, updated_at)
		VALUES ($1, 1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_predictions = user_scores.total_predictions + 1,
			monthly_score     = CASE
				WHEN user_scores.score_month = EXCLUDED.score_month THEN user_scores.monthly_score
				ELSE 0
			END,
			score_month       = EXCLUDED.score_month,
			updated_at        = NOW()`

	if _, err := s.pool.Exec(ctx, query, userID, month); err != nil {
		return fmt.Errorf("postgres: increment submitted %s: %w", userID, err)
	}
	return nil
}

// Get returns the aggregate row of userID.
func (s *UserScoreStore) Get(ctx context.Context, userID string) (domain.UserScore, error) {
	const query = `
		SELECT user_id, total_predictions, correct_predictions, evaluated_predictions,
		       monthly_score, score_month, total_score, updated_at
		FROM user_scores WHERE user_id = $1`

	var us domain.UserScore
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&us.UserID, &us.TotalPredictions, &us.CorrectPredictions, &us.EvaluatedPredictions,
		&us.MonthlyScore, &us.ScoreMonth, &us.TotalScore, &us.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserScore{}, domain.ErrNotFound
		}
		return domain.UserScore{}, fmt.Errorf("postgres: get user score %s: %w", userID, err)
	}
	return us, nil
}

// Compile-time interface check.
var _ domain.UserScoreStore = (*UserScoreStore)(nil)
