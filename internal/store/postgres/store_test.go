package postgres

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestDB starts a PostgreSQL container and applies the embedded
// migrations. Skips the test if Docker is not available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("trendslot"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, NewFromPool(pool).RunMigrations(ctx))
	return pool
}

func seedUserAndAsset(t *testing.T, pool *pgxpool.Pool) (domain.User, domain.Asset) {
	t.Helper()
	ctx := context.Background()

	u := domain.User{ID: "user-1", Email: "a@example.com", EmailVerified: true}
	require.NoError(t, NewUserStore(pool).Upsert(ctx, u))

	a := domain.Asset{ID: "asset-btc", Symbol: "btc", Name: "Bitcoin", FeedSymbol: "BTCUSDT", Active: true}
	require.NoError(t, NewAssetStore(pool).Upsert(ctx, a))
	a.Symbol = "BTC"
	return u, a
}

func newActivePrediction(id string, u domain.User, a domain.Asset, start time.Time) domain.Prediction {
	return domain.Prediction{
		ID:          id,
		UserID:      u.ID,
		AssetID:     a.ID,
		AssetSymbol: a.Symbol,
		Direction:   domain.DirectionUp,
		Duration:    "1h",
		SlotNumber:  2,
		SlotStart:   start,
		SlotEnd:     start.Add(15 * time.Minute),
		CreatedAt:   start.Add(-20 * time.Minute),
		ExpiresAt:   start.Add(15 * time.Minute),
		Status:      domain.PredictionActive,
		Result:      domain.ResultPending,
		PriceStart:  decimal.RequireFromString("64250.12345678"),
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	require.NoError(t, NewFromPool(pool).RunMigrations(context.Background()))
}

func TestAssetStore_LookupIsCaseInsensitive(t *testing.T) {
	pool := setupTestDB(t)
	_, a := seedUserAndAsset(t, pool)
	store := NewAssetStore(pool)
	ctx := context.Background()

	got, err := store.GetBySymbol(ctx, "Btc")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "BTCUSDT", got.FeedSymbol)

	_, err = store.GetBySymbol(ctx, "DOGE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestPredictionStore_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	u, a := seedUserAndAsset(t, pool)
	store := NewPredictionStore(pool)
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 13, 15, 0, 0, time.UTC)
	p := newActivePrediction("pred-1", u, a, start)
	require.NoError(t, store.Create(ctx, p))

	got, err := store.GetByID(ctx, "pred-1")
	require.NoError(t, err)
	assert.True(t, p.PriceStart.Equal(got.PriceStart), "numeric precision preserved")
	assert.Equal(t, domain.PredictionActive, got.Status)
	assert.Nil(t, got.PointsAwarded)
	assert.True(t, got.SlotStart.Equal(start))

	exists, err := store.ExistsActive(ctx, p.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPredictionStore_ConcurrentDuplicateCreate(t *testing.T) {
	pool := setupTestDB(t)
	u, a := seedUserAndAsset(t, pool)
	store := NewPredictionStore(pool)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 13, 15, 0, 0, time.UTC)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := newActivePrediction("dup-"+string(rune('a'+i)), u, a, start)
			errs[i] = store.Create(ctx, p)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, created)
}

func TestPredictionStore_SettleOnce(t *testing.T) {
	pool := setupTestDB(t)
	u, a := seedUserAndAsset(t, pool)
	store := NewPredictionStore(pool)
	scores := NewUserScoreStore(pool)
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 13, 15, 0, 0, time.UTC)
	p := newActivePrediction("pred-settle", u, a, start)
	require.NoError(t, store.Create(ctx, p))

	end := decimal.RequireFromString("64300")
	st := domain.Settlement{
		PredictionID: p.ID,
		UserID:       u.ID,
		Result:       domain.ResultCorrect,
		Points:       12,
		PriceEnd:     &end,
		EvaluatedAt:  p.ExpiresAt.Add(time.Minute),
		EvaluatedBy:  domain.EvaluatedBySweep,
		ScoreMonth:   "2026-03",
	}

	out, err := store.Settle(ctx, st)
	require.NoError(t, err)
	assert.True(t, out.ScoreRowCreated)
	assert.Equal(t, domain.PredictionEvaluated, out.Prediction.Status)
	require.NotNil(t, out.Prediction.PointsAwarded)
	assert.Equal(t, 12, *out.Prediction.PointsAwarded)

	_, err = store.Settle(ctx, st)
	assert.ErrorIs(t, err, domain.ErrNotActive)

	_, err = store.Settle(ctx, domain.Settlement{PredictionID: "missing", ScoreMonth: "2026-03"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	score, err := scores.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), score.TotalScore)
	assert.Equal(t, int64(12), score.MonthlyScore)
	assert.Equal(t, int64(1), score.CorrectPredictions)
	assert.Equal(t, int64(1), score.EvaluatedPredictions)
	assert.Equal(t, int64(1), score.TotalPredictions)

	matured, err := store.ListMatured(ctx, p.ExpiresAt.Add(time.Hour), domain.MaturedCursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, matured)

	evaluated, err := store.ListEvaluated(ctx, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, evaluated, 1)
	assert.Equal(t, p.ID, evaluated[0].ID)

	// The freed slot key may be booked again.
	exists, err := store.ExistsActive(ctx, p.Key())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPredictionStore_ListMaturedPagesPastActiveRows(t *testing.T) {
	pool := setupTestDB(t)
	u, a := seedUserAndAsset(t, pool)
	store := NewPredictionStore(pool)
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	for i, id := range []string{"pred-a", "pred-b", "pred-c"} {
		p := newActivePrediction(id, u, a, start)
		p.SlotNumber = i + 1
		require.NoError(t, store.Create(ctx, p))
	}
	late := newActivePrediction("pred-d", u, a, start.Add(15*time.Minute))
	late.SlotNumber = 4
	require.NoError(t, store.Create(ctx, late))

	now := start.Add(time.Hour)
	first, err := store.ListMatured(ctx, now, domain.MaturedCursor{}, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "pred-a", first[0].ID)
	assert.Equal(t, "pred-b", first[1].ID)

	// Rows of the first page are still active; the cursor moves past them.
	second, err := store.ListMatured(ctx, now, domain.CursorAt(first[1]), 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "pred-c", second[0].ID)
	assert.Equal(t, "pred-d", second[1].ID)

	rest, err := store.ListMatured(ctx, now, domain.CursorAt(second[1]), 2)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestUserScoreStore_MonthRollover(t *testing.T) {
	pool := setupTestDB(t)
	u, a := seedUserAndAsset(t, pool)
	store := NewPredictionStore(pool)
	scores := NewUserScoreStore(pool)
	ctx := context.Background()

	require.NoError(t, scores.IncrementSubmitted(ctx, u.ID, "2026-03"))

	start := time.Date(2026, 3, 31, 21, 0, 0, 0, time.UTC)
	p := newActivePrediction("pred-march", u, a, start)
	require.NoError(t, store.Create(ctx, p))
	_, err := store.Settle(ctx, domain.Settlement{
		PredictionID: p.ID, Result: domain.ResultIncorrect, Points: -3,
		EvaluatedAt: p.ExpiresAt, EvaluatedBy: domain.EvaluatedBySweep, ScoreMonth: "2026-04",
	})
	require.NoError(t, err)

	score, err := scores.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-04", score.ScoreMonth)
	assert.Equal(t, int64(-3), score.MonthlyScore)
	assert.Equal(t, int64(-3), score.TotalScore)
	// One from submission, one from settlement.
	assert.Equal(t, int64(2), score.TotalPredictions)
	assert.Equal(t, int64(0), score.CorrectPredictions)
}

func TestSlotConfigStore_SeedAndUpdate(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSlotConfigStore(pool)
	ctx := context.Background()

	rows := []domain.SlotConfig{
		{Duration: "1h", SlotNumber: 1, StartLabel: "+0:00", EndLabel: "+0:15", PointsIfCorrect: 10, PenaltyIfWrong: 5},
		{Duration: "1h", SlotNumber: 2, StartLabel: "+0:15", EndLabel: "+0:30", PointsIfCorrect: 5, PenaltyIfWrong: 2},
	}
	n, err := store.SeedIfEmpty(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	updated, err := store.UpdatePoints(ctx, "1h", 1, 25, 7)
	require.NoError(t, err)
	assert.Equal(t, 25, updated.PointsIfCorrect)

	// A second seed must not clobber the edit.
	n, err = store.SeedIfEmpty(ctx, rows)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.Get(ctx, "1h", 1)
	require.NoError(t, err)
	assert.Equal(t, 25, got.PointsIfCorrect)
	assert.Equal(t, 7, got.PenaltyIfWrong)

	list, err := store.ListByDuration(ctx, "1h")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = store.UpdatePoints(ctx, "1h", 9, 1, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuditStore_LogAndList(t *testing.T) {
	pool := setupTestDB(t)
	store := NewAuditStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, "slot_config.updated", map[string]any{"duration": "1h"}))
	require.NoError(t, store.Log(ctx, "prediction.override", map[string]any{"id": "p1"}))

	entries, err := store.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "prediction.override", entries[0].Event)
	assert.Equal(t, "p1", entries[0].Detail["id"])
}
