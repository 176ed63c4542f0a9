package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// SlotConfigStore implements domain.SlotConfigStore using PostgreSQL.
type SlotConfigStore struct {
	pool *pgxpool.Pool
}

// NewSlotConfigStore creates a new SlotConfigStore backed by the given connection pool.
func NewSlotConfigStore(pool *pgxpool.Pool) *SlotConfigStore {
	return &SlotConfigStore{pool: pool}
}

const slotConfigCols = `duration, slot_number, start_label, end_label,
	points_if_correct, penalty_if_wrong, updated_at`

func scanSlotConfig(row pgx.Row) (domain.SlotConfig, error) {
	var c domain.SlotConfig
	err := row.Scan(
		&c.Duration, &c.SlotNumber, &c.StartLabel, &c.EndLabel,
		&c.PointsIfCorrect, &c.PenaltyIfWrong, &c.UpdatedAt,
	)
	return c, err
}

// SeedIfEmpty inserts rows only when slot_configs has no rows at all. Rows
// edited by an administrator are never overwritten; two replicas seeding at
// once both hit ON CONFLICT DO NOTHING.
func (s *SlotConfigStore) SeedIfEmpty(ctx context.Context, rows []domain.SlotConfig) (int, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM slot_configs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count slot configs: %w", err)
	}
	if count > 0 || len(rows) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO slot_configs (
			duration, slot_number, start_label, end_label,
			points_if_correct, penalty_if_wrong, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (duration, slot_number) DO NOTHING`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query,
			r.Duration, r.SlotNumber, r.StartLabel, r.EndLabel,
			r.PointsIfCorrect, r.PenaltyIfWrong,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: seed slot config batch item %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Get retrieves one configuration row.
func (s *SlotConfigStore) Get(ctx context.Context, duration string, slotNumber int) (domain.SlotConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+slotConfigCols+` FROM slot_configs WHERE duration = $1 AND slot_number = $2`,
		duration, slotNumber)
	c, err := scanSlotConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SlotConfig{}, domain.ErrNotFound
		}
		return domain.SlotConfig{}, fmt.Errorf("postgres: get slot config %s/%d: %w", duration, slotNumber, err)
	}
	return c, nil
}

// ListByDuration returns the rows of one duration ordered by slot number.
func (s *SlotConfigStore) ListByDuration(ctx context.Context, duration string) ([]domain.SlotConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+slotConfigCols+` FROM slot_configs WHERE duration = $1 ORDER BY slot_number`, duration)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slot configs %s: %w", duration, err)
	}
	return collectSlotConfigs(rows)
}

// List returns every configuration row.
func (s *SlotConfigStore) List(ctx context.Context) ([]domain.SlotConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+slotConfigCols+` FROM slot_configs ORDER BY duration, slot_number`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slot configs: %w", err)
	}
	return collectSlotConfigs(rows)
}

func collectSlotConfigs(rows pgx.Rows) ([]domain.SlotConfig, error) {
	defer rows.Close()

	var out []domain.SlotConfig
	for rows.Next() {
		c, err := scanSlotConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan slot config: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list slot configs rows: %w", err)
	}
	return out, nil
}

// UpdatePoints changes the points and penalty of an existing row.
func (s *SlotConfigStore) UpdatePoints(ctx context.Context, duration string, slotNumber, points, penalty int) (domain.SlotConfig, error) {
	const query = `
		UPDATE slot_configs SET
			points_if_correct = $3,
			penalty_if_wrong  = $4,
			updated_at        = NOW()
		WHERE duration = $1 AND slot_number = $2
		RETURNING ` + slotConfigCols

	c, err := scanSlotConfig(s.pool.QueryRow(ctx, query, duration, slotNumber, points, penalty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SlotConfig{}, domain.ErrNotFound
		}
		return domain.SlotConfig{}, fmt.Errorf("postgres: update slot config %s/%d: %w", duration, slotNumber, err)
	}
	return c, nil
}

// Compile-time interface check.
var _ domain.SlotConfigStore = (*SlotConfigStore)(nil)
