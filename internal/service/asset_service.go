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
)

// AssetUpdate is an administrator's change to one asset.
type AssetUpdate struct {
	Name       string
	FeedSymbol string
	Active     bool
}

// AssetService manages the asset catalogue.
type AssetService struct {
	assets domain.AssetStore
	audit  domain.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAssetService creates an AssetService. audit may be nil.
func NewAssetService(assets domain.AssetStore, audit domain.AuditStore, logger *slog.Logger) *AssetService {
	return &AssetService{
		assets: assets,
		audit:  audit,
		logger: logger.With(slog.String("component", "asset_service")),
		now:    time.Now,
	}
}

// ListActive returns the assets open for predictions.
func (s *AssetService) ListActive(ctx context.Context) ([]domain.Asset, error) {
	return s.assets.ListActive(ctx)
}

// Upsert creates or updates the asset with the given symbol. The symbol is
// stored upper-case; the feed symbol defaults to the symbol itself.
func (s *AssetService) Upsert(ctx context.Context, symbol string, u AssetUpdate) (domain.Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Asset{}, fmt.Errorf("%w: symbol is required", domain.ErrAssetUnavailable)
	}

	a, err := s.assets.GetBySymbol(ctx, symbol)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a = domain.Asset{ID: uuid.NewString(), Symbol: symbol}
	case err != nil:
		return domain.Asset{}, fmt.Errorf("asset_service: load %s: %w", symbol, err)
	}

	a.Name = strings.TrimSpace(u.Name)
	a.FeedSymbol = strings.ToUpper(strings.TrimSpace(u.FeedSymbol))
	if a.FeedSymbol == "" {
		a.FeedSymbol = symbol
	}
	a.Active = u.Active
	a.UpdatedAt = s.now().UTC()

	if err := s.assets.Upsert(ctx, a); err != nil {
		return domain.Asset{}, fmt.Errorf("asset_service: upsert %s: %w", symbol, err)
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "asset.upserted", map[string]any{
			"symbol": symbol, "feed_symbol": a.FeedSymbol, "active": a.Active,
		}); err != nil {
			s.logger.WarnContext(ctx, "asset_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "asset_service: asset saved",
		slog.String("symbol", symbol),
		slog.Bool("active", a.Active),
	)
	return a, nil
}
