package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/trendslot/internal/service"
)

// SlotService is what the slot handler needs from the service layer.
type SlotService interface {
	Active(ctx context.Context, duration string, now time.Time) (service.SlotInfo, error)
	Upcoming(ctx context.Context, duration string) ([]service.SlotInfo, error)
	Validate(ctx context.Context, duration string, n int) (service.Validation, error)
}

// SlotHandler serves the public slot queries.
type SlotHandler struct {
	slots  SlotService
	logger *slog.Logger
	now    func() time.Time
}

// NewSlotHandler creates a SlotHandler.
func NewSlotHandler(slots SlotService, logger *slog.Logger) *SlotHandler {
	return &SlotHandler{slots: slots, logger: logger, now: time.Now}
}

type slotResponse struct {
	Duration           string    `json:"duration"`
	SlotNumber         int       `json:"slot_number"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	StartLabel         string    `json:"start_label"`
	EndLabel           string    `json:"end_label"`
	Points             int       `json:"points"`
	Penalty            int       `json:"penalty"`
	Locked             bool      `json:"locked"`
	SecondsUntilStart  int64     `json:"seconds_until_start"`
	SecondsUntilLock   int64     `json:"seconds_until_lock"`
	SecondsUntilUnlock int64     `json:"seconds_until_unlock"`
}

func toSlotResponse(s service.SlotInfo) slotResponse {
	return slotResponse{
		Duration:           s.Duration,
		SlotNumber:         s.Number,
		Start:              s.Start,
		End:                s.End,
		StartLabel:         s.StartLabel,
		EndLabel:           s.EndLabel,
		Points:             s.Points,
		Penalty:            s.Penalty,
		Locked:             s.Lock.Locked,
		SecondsUntilStart:  int64(s.Lock.TimeUntilStart / time.Second),
		SecondsUntilLock:   int64(s.Lock.TimeUntilLock / time.Second),
		SecondsUntilUnlock: int64(s.Lock.TimeUntilUnlock / time.Second),
	}
}

// Active returns the slot of the duration that contains the current instant.
// GET /slots/{duration}/active
func (h *SlotHandler) Active(w http.ResponseWriter, r *http.Request) {
	info, err := h.slots.Active(r.Context(), r.PathValue("duration"), h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(info))
}

// Upcoming lists the current and remaining slots of the current period.
// GET /slots/{duration}
func (h *SlotHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	infos, err := h.slots.Upcoming(r.Context(), r.PathValue("duration"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]slotResponse, len(infos))
	for i, info := range infos {
		out[i] = toSlotResponse(info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"duration": r.PathValue("duration"), "slots": out})
}

type validationResponse struct {
	Valid  bool          `json:"valid"`
	Reason string        `json:"reason,omitempty"`
	Slot   *slotResponse `json:"slot,omitempty"`
}

// Validate tells whether a slot of the current period still accepts
// predictions.
// POST /slots/{duration}/{slotNumber}/validate
func (h *SlotHandler) Validate(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("slotNumber"))
	if err != nil {
		writeBadRequest(w, "slot number must be an integer")
		return
	}
	v, err := h.slots.Validate(r.Context(), r.PathValue("duration"), n)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := validationResponse{Valid: v.Valid, Reason: v.Reason}
	if v.Slot != nil {
		s := toSlotResponse(*v.Slot)
		resp.Slot = &s
	}
	writeJSON(w, http.StatusOK, resp)
}
