package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/service"
)

// Evaluator is what the evaluation handler needs from the service layer.
type Evaluator interface {
	EvaluateExpired(ctx context.Context) (service.SweepReport, error)
	EvaluateOne(ctx context.Context, id string) (domain.Prediction, error)
	Override(ctx context.Context, id string, o service.AdminOverride) (domain.Prediction, error)
}

// EvaluationHandler serves the externally triggered sweep and the admin
// settlement endpoints.
type EvaluationHandler struct {
	evaluator Evaluator
	logger    *slog.Logger
}

// NewEvaluationHandler creates an EvaluationHandler.
func NewEvaluationHandler(evaluator Evaluator, logger *slog.Logger) *EvaluationHandler {
	return &EvaluationHandler{evaluator: evaluator, logger: logger}
}

// Sweep runs one evaluation sweep and returns its report. A sweep already
// running on another replica yields a report with skipped set.
// POST /cron/evaluate-predictions
func (h *EvaluationHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: evaluation sweep requested")
	report, err := h.evaluator.EvaluateExpired(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type evaluateRequest struct {
	Result   string           `json:"result"`
	Points   *int             `json:"points"`
	PriceEnd *decimal.Decimal `json:"price_end"`
}

// Evaluate settles one prediction. Without a result in the body the
// prediction is evaluated against the current price, which requires it to
// have matured; with a result the administrator's outcome is imposed.
// POST /admin/predictions/{id}/evaluate
func (h *EvaluationHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body evaluateRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	var (
		p   domain.Prediction
		err error
	)
	if body.Result == "" {
		p, err = h.evaluator.EvaluateOne(r.Context(), id)
	} else {
		p, err = h.evaluator.Override(r.Context(), id, service.AdminOverride{
			Result:   domain.PredictionResult(body.Result),
			Points:   body.Points,
			PriceEnd: body.PriceEnd,
		})
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPredictionResponse(p))
}
