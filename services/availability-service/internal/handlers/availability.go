// Package handlers is the HTTP surface of the availability service: the
// public availability query, the stateless slot-search endpoint, and the
// authenticated settings management endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/availability"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

type AvailabilityHandler struct {
	svc    *availability.Service
	logger *slog.Logger
}

func NewAvailabilityHandler(svc *availability.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

// GetAvailability serves the public availability query. Zero slots is a 200
// with an empty array, never an error.
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	from, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		http.Error(w, "invalid from (RFC3339)", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		http.Error(w, "invalid to (RFC3339)", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	duration := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration < 1 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
	}

	starts, err := h.svc.GetAvailability(r.Context(), businessID, duration, from.UTC(), to.UTC())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"businessId":     businessID,
		"availabilities": starts,
	})
}

type slotPayload struct {
	StartAt  int64 `json:"startAt"`
	EndAt    int64 `json:"endAt"`
	Duration int   `json:"duration"`
}

// SearchSlots is the stateless search endpoint: configuration and busy
// intervals come in the request, nothing is read from storage. Instants are
// UTC epoch milliseconds on the wire.
func (h *AvailabilityHandler) SearchSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Config schedule.Config `json:"config"`
		Busy   []struct {
			StartAt int64 `json:"startAt"`
			EndAt   int64 `json:"endAt"`
		} `json:"busy"`
		From int64 `json:"from"`
		To   int64 `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.To <= req.From {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	busy := make([]interval.Period, 0, len(req.Busy))
	for _, b := range req.Busy {
		busy = append(busy, interval.Period{
			Start: time.UnixMilli(b.StartAt).UTC(),
			End:   time.UnixMilli(b.EndAt).UTC(),
		})
	}

	slots, err := availability.ComputeSlots(req.Config, busy,
		time.UnixMilli(req.From).UTC(), time.UnixMilli(req.To).UTC(), time.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]slotPayload, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotPayload{
			StartAt:  s.StartAt.UnixMilli(),
			EndAt:    s.EndAt.UnixMilli(),
			Duration: int(s.Duration / time.Minute),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// writeError translates the engine's error taxonomy: configuration problems
// are the caller's to fix (400, naming the field), collaborator failures are
// retryable upstream problems (502).
func (h *AvailabilityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *schedule.ConfigError
	if errors.As(err, &cfgErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":  "invalid scheduling configuration",
			"field":  cfgErr.Field,
			"reason": cfgErr.Reason,
		})
		return
	}

	var srcErr *availability.SourceError
	if errors.As(err, &srcErr) {
		h.logger.ErrorContext(r.Context(), "busy source unavailable",
			slog.String("source", srcErr.Source), slog.String("error", srcErr.Err.Error()))
		http.Error(w, "upstream availability source failed", http.StatusBadGateway)
		return
	}

	h.logger.ErrorContext(r.Context(), "availability request failed", slog.String("error", err.Error()))
	http.Error(w, "internal error", http.StatusInternalServerError)
}
