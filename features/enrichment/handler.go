package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"salonindex/features/index"
	"salonindex/features/progress"
	"salonindex/features/stop"
	"salonindex/internal/middleware"
)

type Starter interface {
	EnrichTier(ctx context.Context, req TierRequest) (*Launched, error)
	EnrichByIDs(ctx context.Context, ids []string) (*Launched, error)
	Release(ctx context.Context, source, reason string) (*progress.Progress, error)
}

type StatusReader interface {
	Load(ctx context.Context) (*progress.Progress, error)
}

type StopStats interface {
	Stats(ctx context.Context) (*stop.Stats, error)
}

type Handler struct {
	starter  Starter
	progress StatusReader
	stops    StopStats
}

func NewHandler(s Starter, p StatusReader, st StopStats) *Handler {
	return &Handler{starter: s, progress: p, stops: st}
}

type TierBody struct {
	Tier            string   `json:"tier"`
	Strategy        Strategy `json:"strategy"`
	TopPerPartition int      `json:"top_per_partition"`
	Limit           int      `json:"limit"`
}

type SelectedBody struct {
	RecordIDs []string `json:"record_ids"`
}

type ReleaseBody struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

func (h *Handler) StartTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body TierBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest, nil)
		return
	}
	tier, err := index.ParseTier(body.Tier)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest, nil)
		return
	}
	if body.Limit < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "limit must not be negative", http.StatusBadRequest, nil)
		return
	}

	slog.InfoContext(ctx, "starting tier enrichment", "tier", tier, "strategy", body.Strategy, "top_per_partition", body.TopPerPartition, "limit", body.Limit)
	launched, err := h.starter.EnrichTier(ctx, TierRequest{
		Tier:            tier,
		Strategy:        body.Strategy,
		TopPerPartition: body.TopPerPartition,
		Limit:           body.Limit,
	})
	h.respond(ctx, w, launched, err)
}

func (h *Handler) StartSelected(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body SelectedBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest, nil)
		return
	}

	slog.InfoContext(ctx, "starting selected enrichment", "count", len(body.RecordIDs))
	launched, err := h.starter.EnrichByIDs(ctx, body.RecordIDs)
	h.respond(ctx, w, launched, err)
}

// Release clears a job slot left held by a run that died. The body is
// optional.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body ReleaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest, nil)
		return
	}
	if body.Source == "" {
		body.Source = "operator"
	}

	slog.WarnContext(ctx, "releasing enrichment job slot", "source", body.Source, "reason", body.Reason)
	p, err := h.starter.Release(ctx, body.Source, body.Reason)
	switch {
	case errors.Is(err, ErrNotRunning):
		h.writeError(ctx, w, "NOT_RUNNING", err.Error(), http.StatusConflict, h.progressState(ctx))
		return
	case err != nil:
		slog.ErrorContext(ctx, "failed to release job slot", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to release job slot", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": p}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) respond(ctx context.Context, w http.ResponseWriter, launched *Launched, err error) {
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": launched}); err != nil {
			slog.ErrorContext(ctx, "failed to encode response", "error", err)
		}
		return
	}

	switch {
	case errors.Is(err, ErrJobRunning):
		h.writeError(ctx, w, "JOB_RUNNING", err.Error(), http.StatusConflict, h.progressState(ctx))
	case errors.Is(err, ErrStopPending):
		h.writeError(ctx, w, "STOP_PENDING", err.Error()+"; clear stop signals first", http.StatusConflict, h.stopState(ctx))
	case errors.Is(err, ErrNoRecords):
		h.writeError(ctx, w, "NO_RECORDS", err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrInvalidStrategy), errors.Is(err, index.ErrInvalidTier), errors.Is(err, index.ErrInvalidArgument):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, index.ErrIndexNotFound):
		h.writeError(ctx, w, "INDEX_NOT_FOUND", "index has not been generated", http.StatusNotFound, map[string]interface{}{"indexExists": false})
	default:
		slog.ErrorContext(ctx, "failed to start enrichment", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to start enrichment", http.StatusInternalServerError, h.progressState(ctx))
	}
}

func (h *Handler) progressState(ctx context.Context) map[string]interface{} {
	p, err := h.progress.Load(ctx)
	if err != nil {
		return nil
	}
	return map[string]interface{}{"progress": p}
}

func (h *Handler) stopState(ctx context.Context) map[string]interface{} {
	s, err := h.stops.Stats(ctx)
	if err != nil {
		return nil
	}
	return map[string]interface{}{"stop": s}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int, state map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if state != nil {
		resp["state"] = state
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
