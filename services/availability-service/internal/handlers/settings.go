package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/outbox"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/storage"
)

// CacheInvalidator drops a business's cached settings. The Kafka consumer
// invalidates the other instances; the local drop makes the write immediately
// visible on the instance that served it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, businessID string) error
}

type SettingsHandler struct {
	repo   *storage.SettingsRepository
	outbox *outbox.Repository
	cache  CacheInvalidator
	logger *slog.Logger
}

func NewSettingsHandler(repo *storage.SettingsRepository, outboxRepo *outbox.Repository, cache CacheInvalidator, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{repo: repo, outbox: outboxRepo, cache: cache, logger: logger}
}

func businessIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Business-Id"))
}

type settingsPayload struct {
	Config          schedule.Config `json:"config"`
	CalendarFeedURL string          `json:"calendarFeedUrl,omitempty"`
	UpdatedAt       *time.Time      `json:"updatedAt,omitempty"`
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	rec, err := h.repo.Get(r.Context(), businessID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "no scheduling settings configured", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "settings load failed", slog.String("error", err.Error()))
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	updatedAt := rec.UpdatedAt
	_ = json.NewEncoder(w).Encode(settingsPayload{
		Config:          rec.Config,
		CalendarFeedURL: rec.CalendarFeedURL,
		UpdatedAt:       &updatedAt,
	})
}

// PutSettings validates and persists the full settings document, emits the
// settings-updated event in the same transaction, and drops the local cache.
func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CalendarFeedURL = strings.TrimSpace(req.CalendarFeedURL)
	if req.CalendarFeedURL != "" && !strings.HasPrefix(req.CalendarFeedURL, "http://") && !strings.HasPrefix(req.CalendarFeedURL, "https://") {
		http.Error(w, "calendarFeedUrl must be an http(s) URL", http.StatusBadRequest)
		return
	}

	// Reject broken configurations at write time, not at the first
	// availability query that trips over them.
	if _, err := schedule.Validate(req.Config); err != nil {
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
		http.Error(w, "invalid scheduling configuration", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "settings tx begin failed", slog.String("error", err.Error()))
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	rec := storage.SettingsRecord{
		BusinessID:      businessID,
		Config:          req.Config,
		CalendarFeedURL: req.CalendarFeedURL,
		UpdatedAt:       now,
	}
	if err := h.repo.SaveTx(ctx, tx, rec); err != nil {
		h.logger.ErrorContext(ctx, "settings save failed", slog.String("error", err.Error()))
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.SettingsUpdated(businessID, now)); err != nil {
		h.logger.ErrorContext(ctx, "outbox insert failed", slog.String("error", err.Error()))
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.logger.ErrorContext(ctx, "settings commit failed", slog.String("error", err.Error()))
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}

	if err := h.cache.Invalidate(ctx, businessID); err != nil {
		// The consumer will still invalidate; stale reads last one TTL at worst.
		h.logger.WarnContext(ctx, "local cache invalidation failed", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusNoContent)
}

type blackoutPayload struct {
	ID      string          `json:"id,omitempty"`
	StartAt schedule.Moment `json:"startAt"`
	EndAt   schedule.Moment `json:"endAt"`
}

func (h *SettingsHandler) ListBlackouts(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	blackouts, err := h.repo.ListBlackouts(r.Context(), businessID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "blackout list failed", slog.String("error", err.Error()))
		http.Error(w, "failed to list blackouts", http.StatusInternalServerError)
		return
	}

	out := make([]blackoutPayload, 0, len(blackouts))
	for _, b := range blackouts {
		out = append(out, blackoutPayload{ID: b.ID, StartAt: b.Period.StartAt, EndAt: b.Period.EndAt})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// AddBlackout appends one blackout to the business's existing settings. The
// candidate is validated against the full current configuration so a blackout
// that would make the document invalid is rejected up front.
func (h *SettingsHandler) AddBlackout(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req blackoutPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	candidate := schedule.BlackoutPeriod{StartAt: req.StartAt, EndAt: req.EndAt}

	ctx := r.Context()
	rec, err := h.repo.Get(ctx, businessID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "no scheduling settings configured", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "settings load failed", slog.String("error", err.Error()))
		http.Error(w, "failed to add blackout", http.StatusInternalServerError)
		return
	}
	cfg := rec.Config
	cfg.UnavailablePeriods = append(cfg.UnavailablePeriods, candidate)
	if _, err := schedule.Validate(cfg); err != nil {
		var cfgErr *schedule.ConfigError
		if errors.As(err, &cfgErr) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":  "invalid blackout period",
				"field":  cfgErr.Field,
				"reason": cfgErr.Reason,
			})
			return
		}
		http.Error(w, "invalid blackout period", http.StatusBadRequest)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "blackout tx begin failed", slog.String("error", err.Error()))
		http.Error(w, "failed to add blackout", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.AddBlackoutTx(ctx, tx, businessID, candidate)
	if err != nil {
		h.logger.ErrorContext(ctx, "blackout insert failed", slog.String("error", err.Error()))
		http.Error(w, "failed to add blackout", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.SettingsUpdated(businessID, time.Now().UTC())); err != nil {
		h.logger.ErrorContext(ctx, "outbox insert failed", slog.String("error", err.Error()))
		http.Error(w, "failed to add blackout", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.logger.ErrorContext(ctx, "blackout commit failed", slog.String("error", err.Error()))
		http.Error(w, "failed to add blackout", http.StatusInternalServerError)
		return
	}

	if err := h.cache.Invalidate(ctx, businessID); err != nil {
		h.logger.WarnContext(ctx, "local cache invalidation failed", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// DeleteBlackout handles DELETE /api/v1/settings/blackouts/{id}.
func (h *SettingsHandler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/settings/blackouts/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing blackout id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "blackout tx begin failed", slog.String("error", err.Error()))
		http.Error(w, "failed to delete blackout", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := h.repo.DeleteBlackoutTx(ctx, tx, businessID, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "blackout delete failed", slog.String("error", err.Error()))
		http.Error(w, "failed to delete blackout", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "blackout not found", http.StatusNotFound)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.SettingsUpdated(businessID, time.Now().UTC())); err != nil {
		h.logger.ErrorContext(ctx, "outbox insert failed", slog.String("error", err.Error()))
		http.Error(w, "failed to delete blackout", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.logger.ErrorContext(ctx, "blackout commit failed", slog.String("error", err.Error()))
		http.Error(w, "failed to delete blackout", http.StatusInternalServerError)
		return
	}

	if err := h.cache.Invalidate(ctx, businessID); err != nil {
		h.logger.WarnContext(ctx, "local cache invalidation failed", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusNoContent)
}
