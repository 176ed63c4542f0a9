package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

// AssetStore implements domain.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates a new AssetStore backed by the given connection pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

const assetCols = `id, symbol, name, feed_symbol, active, updated_at`

func scanAsset(row pgx.Row) (domain.Asset, error) {
	var a domain.Asset
	err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.FeedSymbol, &a.Active, &a.UpdatedAt)
	return a, err
}

func (s *AssetStore) getOne(ctx context.Context, where, arg string) (domain.Asset, error) {
	a, err := scanAsset(s.pool.QueryRow(ctx, `SELECT `+assetCols+` FROM assets WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Asset{}, domain.ErrNotFound
		}
		return domain.Asset{}, fmt.Errorf("postgres: get asset %s: %w", arg, err)
	}
	return a, nil
}

// GetBySymbol looks an asset up by its symbol, case-insensitively.
func (s *AssetStore) GetBySymbol(ctx context.Context, symbol string) (domain.Asset, error) {
	return s.getOne(ctx, "symbol = $1", strings.ToUpper(symbol))
}

// GetByID retrieves an asset by id.
func (s *AssetStore) GetByID(ctx context.Context, id string) (domain.Asset, error) {
	return s.getOne(ctx, "id = $1", id)
}

// Upsert inserts or updates an asset. Symbols are stored upper-case.
func (s *AssetStore) Upsert(ctx context.Context, a domain.Asset) error {
	const query = `
		INSERT INTO assets (id, symbol, name, feed_symbol, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			symbol      = EXCLUDED.symbol,
			name        = EXCLUDED.name,
			feed_symbol = EXCLUDED.feed_symbol,
			active      = EXCLUDED.active,
			updated_at  = NOW()`

	_, err := s.pool.Exec(ctx, query, a.ID, strings.ToUpper(a.Symbol), a.Name, a.FeedSymbol, a.Active)
	if err != nil {
		return fmt.Errorf("postgres: upsert asset %s: %w", a.Symbol, err)
	}
	return nil
}

// ListActive returns active assets ordered by symbol.
func (s *AssetStore) ListActive(ctx context.Context) ([]domain.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assetCols+` FROM assets WHERE active ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active assets: %w", err)
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active assets rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.AssetStore = (*AssetStore)(nil)
