package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	s3blob "github.com/alanyoungcy/trendslot/internal/blob/s3"
	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/service"
)

// SlotConfigService manages persisted slot configuration.
type SlotConfigService interface {
	ListConfigs(ctx context.Context, duration string) ([]domain.SlotConfig, error)
	UpdateConfig(ctx context.Context, duration string, n, points, penalty int) (domain.SlotConfig, error)
}

// AssetService manages the asset catalogue.
type AssetService interface {
	ListActive(ctx context.Context) ([]domain.Asset, error)
	Upsert(ctx context.Context, symbol string, u service.AssetUpdate) (domain.Asset, error)
}

// ArchiveBrowser reads the prediction archive back.
type ArchiveBrowser interface {
	Days(ctx context.Context) ([]s3blob.ArchivedDay, error)
	Open(ctx context.Context, day string) (io.ReadCloser, error)
}

// AuditReader lists audit log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the administrative endpoints. archive may be nil when
// archiving is disabled.
type AdminHandler struct {
	slots   SlotConfigService
	assets  AssetService
	audit   AuditReader
	archive ArchiveBrowser
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(slots SlotConfigService, assets AssetService, audit AuditReader, archive ArchiveBrowser, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{slots: slots, assets: assets, audit: audit, archive: archive, logger: logger}
}

type slotConfigResponse struct {
	Duration        string    `json:"duration"`
	SlotNumber      int       `json:"slot_number"`
	StartLabel      string    `json:"start_label"`
	EndLabel        string    `json:"end_label"`
	PointsIfCorrect int       `json:"points_if_correct"`
	PenaltyIfWrong  int       `json:"penalty_if_wrong"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toSlotConfigResponse(c domain.SlotConfig) slotConfigResponse {
	return slotConfigResponse{
		Duration:        c.Duration,
		SlotNumber:      c.SlotNumber,
		StartLabel:      c.StartLabel,
		EndLabel:        c.EndLabel,
		PointsIfCorrect: c.PointsIfCorrect,
		PenaltyIfWrong:  c.PenaltyIfWrong,
		UpdatedAt:       c.UpdatedAt,
	}
}

// ListSlotConfigs returns the slot configuration, optionally for one
// duration.
// GET /admin/slots?duration=1h
func (h *AdminHandler) ListSlotConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.slots.ListConfigs(r.Context(), r.URL.Query().Get("duration"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]slotConfigResponse, len(cfgs))
	for i, c := range cfgs {
		out[i] = toSlotConfigResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

type updateSlotConfigRequest struct {
	PointsIfCorrect *int `json:"points_if_correct"`
	PenaltyIfWrong  *int `json:"penalty_if_wrong"`
}

// UpdateSlotConfig changes the points and penalty of one slot.
// PUT /admin/slots/{duration}/{slotNumber}
func (h *AdminHandler) UpdateSlotConfig(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("slotNumber"))
	if err != nil {
		writeBadRequest(w, "slot number must be an integer")
		return
	}
	var body updateSlotConfigRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.PointsIfCorrect == nil || body.PenaltyIfWrong == nil {
		writeBadRequest(w, "points_if_correct and penalty_if_wrong are required")
		return
	}

	cfg, err := h.slots.UpdateConfig(r.Context(), r.PathValue("duration"), n, *body.PointsIfCorrect, *body.PenaltyIfWrong)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotConfigResponse(cfg))
}

type assetRequest struct {
	Name       string `json:"name"`
	FeedSymbol string `json:"feed_symbol"`
	Active     *bool  `json:"active"`
}

type assetResponse struct {
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	FeedSymbol string    `json:"feed_symbol"`
	Active     bool      `json:"active"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAssetResponse(a domain.Asset) assetResponse {
	return assetResponse{
		Symbol:     a.Symbol,
		Name:       a.Name,
		FeedSymbol: a.FeedSymbol,
		Active:     a.Active,
		UpdatedAt:  a.UpdatedAt,
	}
}

// UpsertAsset creates or updates an asset. Active defaults to true.
// PUT /admin/assets/{symbol}
func (h *AdminHandler) UpsertAsset(w http.ResponseWriter, r *http.Request) {
	var body assetRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	active := body.Active == nil || *body.Active

	a, err := h.assets.Upsert(r.Context(), r.PathValue("symbol"), service.AssetUpdate{
		Name:       body.Name,
		FeedSymbol: body.FeedSymbol,
		Active:     active,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(a))
}

// ListAssets returns the assets open for predictions.
// GET /assets
func (h *AdminHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assets.ListActive(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]assetResponse, len(assets))
	for i, a := range assets {
		out[i] = toAssetResponse(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListAudit returns audit log entries, newest first.
// GET /admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = auditEntryResponse{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// ListArchive returns the archived days.
// GET /admin/archive
func (h *AdminHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, r, h.logger, errArchiveDisabled)
		return
	}
	days, err := h.archive.Days(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if days == nil {
		days = []s3blob.ArchivedDay{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

// GetArchiveDay streams one archived day as JSONL.
// GET /admin/archive/{day}
func (h *AdminHandler) GetArchiveDay(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, r, h.logger, errArchiveDisabled)
		return
	}
	rc, err := h.archive.Open(r.Context(), r.PathValue("day"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted", slog.String("error", err.Error()))
	}
}

var errArchiveDisabled = fmt.Errorf("%w: archive is disabled", domain.ErrNotFound)
