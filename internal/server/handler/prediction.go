package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/server/middleware"
	"github.com/alanyoungcy/trendslot/internal/service"
)

// PredictionService is what the prediction handler needs from the service
// layer.
type PredictionService interface {
	Create(ctx context.Context, req service.CreateRequest) (domain.Prediction, error)
	Get(ctx context.Context, id string) (domain.Prediction, error)
	ListForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error)
}

// ScoreReader returns a user's aggregate.
type ScoreReader interface {
	Get(ctx context.Context, userID string) (domain.UserScore, error)
}

// PredictionHandler serves the user-facing prediction endpoints.
type PredictionHandler struct {
	predictions PredictionService
	scores      ScoreReader
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(predictions PredictionService, scores ScoreReader, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, scores: scores, logger: logger}
}

type createPredictionRequest struct {
	Asset     string `json:"asset"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
}

type predictionResponse struct {
	ID            string           `json:"id"`
	Asset         string           `json:"asset"`
	Direction     string           `json:"direction"`
	Duration      string           `json:"duration"`
	SlotNumber    int              `json:"slot_number"`
	SlotStart     time.Time        `json:"slot_start"`
	SlotEnd       time.Time        `json:"slot_end"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	Status        string           `json:"status"`
	Result        string           `json:"result"`
	PriceStart    decimal.Decimal  `json:"price_start"`
	PriceEnd      *decimal.Decimal `json:"price_end"`
	PointsAwarded *int             `json:"points_awarded"`
	EvaluatedAt   *time.Time       `json:"evaluated_at,omitempty"`
	EvaluatedBy   string           `json:"evaluated_by,omitempty"`
}

func toPredictionResponse(p domain.Prediction) predictionResponse {
	return predictionResponse{
		ID:            p.ID,
		Asset:         p.AssetSymbol,
		Direction:     string(p.Direction),
		Duration:      p.Duration,
		SlotNumber:    p.SlotNumber,
		SlotStart:     p.SlotStart,
		SlotEnd:       p.SlotEnd,
		CreatedAt:     p.CreatedAt,
		ExpiresAt:     p.ExpiresAt,
		Status:        string(p.Status),
		Result:        string(p.Result),
		PriceStart:    p.PriceStart,
		PriceEnd:      p.PriceEnd,
		PointsAwarded: p.PointsAwarded,
		EvaluatedAt:   p.EvaluatedAt,
		EvaluatedBy:   string(p.EvaluatedBy),
	}
}

// Create books a prediction on the next slot of the requested duration.
// POST /predictions
func (h *PredictionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var body createPredictionRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.Asset == "" || body.Duration == "" {
		writeBadRequest(w, "asset and duration are required")
		return
	}

	p, err := h.predictions.Create(r.Context(), service.CreateRequest{
		UserID:      userID,
		AssetSymbol: body.Asset,
		Direction:   domain.Direction(body.Direction),
		Duration:    body.Duration,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPredictionResponse(p))
}

// Get returns one of the caller's predictions. Other users' predictions are
// reported as not found.
// GET /predictions/{id}
func (h *PredictionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	p, err := h.predictions.Get(r.Context(), r.PathValue("id"))
	if err == nil && p.UserID != userID {
		err = domain.ErrNotFound
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPredictionResponse(p))
}

// ListMine returns the caller's predictions, newest first.
// GET /users/me/predictions?limit=50&offset=0
func (h *PredictionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	ps, err := h.predictions.ListForUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]predictionResponse, len(ps))
	for i, p := range ps {
		out[i] = toPredictionResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": out})
}

type scoreResponse struct {
	TotalPredictions     int64   `json:"total_predictions"`
	EvaluatedPredictions int64   `json:"evaluated_predictions"`
	CorrectPredictions   int64   `json:"correct_predictions"`
	Accuracy             float64 `json:"accuracy"`
	TotalScore           int64   `json:"total_score"`
	MonthlyScore         int64   `json:"monthly_score"`
	ScoreMonth           string  `json:"score_month"`
}

// MyScore returns the caller's score aggregate. A user without predictions
// gets zeros.
// GET /users/me/score
func (h *PredictionHandler) MyScore(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	s, err := h.scores.Get(r.Context(), userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeError(w, r, h.logger, err)
		return
	}
	resp := scoreResponse{
		TotalPredictions:     s.TotalPredictions,
		EvaluatedPredictions: s.EvaluatedPredictions,
		CorrectPredictions:   s.CorrectPredictions,
		TotalScore:           s.TotalScore,
		MonthlyScore:         s.MonthlyScore,
		ScoreMonth:           s.ScoreMonth,
	}
	if s.EvaluatedPredictions > 0 {
		resp.Accuracy = float64(s.CorrectPredictions) / float64(s.EvaluatedPredictions)
	}
	writeJSON(w, http.StatusOK, resp)
}
