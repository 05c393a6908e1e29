package index

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"salonindex/internal/middleware"
)

type Querier interface {
	Exists(ctx context.Context) (bool, error)
	Stats(ctx context.Context) (*Summary, error)
	ByTier(ctx context.Context, tier Tier) ([]RecordRef, error)
	ByTierWithDiversity(ctx context.Context, tier Tier, topPerPartition int) ([]RecordRef, error)
}

type Handler struct {
	builder Rebuilder
	query   Querier
}

func NewHandler(b Rebuilder, q Querier) *Handler {
	return &Handler{builder: b, query: q}
}

type StatsResponse struct {
	Exists  bool     `json:"exists"`
	Summary *Summary `json:"summary"`
}

func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "regenerating review-tier index")

	idx, err := h.builder.Rebuild(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "index rebuild failed", "error", err)
		status := http.StatusInternalServerError
		code := "INTERNAL_ERROR"
		message := "index rebuild failed"
		if errors.Is(err, ErrScanIncomplete) {
			status = http.StatusServiceUnavailable
			code = "SCAN_INCOMPLETE"
			message = "index rebuild failed: partitions could not be scanned, previous index kept"
		}
		h.writeErrorWithState(ctx, w, code, message, status, h.knownState(ctx))
		return
	}

	h.writeData(ctx, w, http.StatusOK, idx.Summary(), nil)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	exists, err := h.query.Exists(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check index", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to check index", http.StatusInternalServerError)
		return
	}
	resp := StatsResponse{Exists: exists}
	if exists {
		summary, err := h.query.Stats(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read index stats", "error", err)
			h.writeErrorWithState(ctx, w, "INTERNAL_ERROR", "failed to read index stats", http.StatusInternalServerError, map[string]interface{}{"exists": true})
			return
		}
		resp.Summary = summary
	}

	h.writeData(ctx, w, http.StatusOK, resp, nil)
}

func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tier, err := ParseTier(r.PathValue("tier"))
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
		return
	}

	var refs []RecordRef
	meta := map[string]interface{}{"tier": tier}
	if raw := r.URL.Query().Get("top_per_partition"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			h.writeError(ctx, w, "BAD_REQUEST", "top_per_partition must be a positive integer", http.StatusBadRequest)
			return
		}
		meta["topPerPartition"] = n
		refs, err = h.query.ByTierWithDiversity(ctx, tier, n)
	} else {
		refs, err = h.query.ByTier(ctx, tier)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrIndexNotFound):
			h.writeErrorWithState(ctx, w, "NOT_FOUND", "index has not been generated", http.StatusNotFound, map[string]interface{}{"exists": false})
		case errors.Is(err, ErrInvalidTier), errors.Is(err, ErrInvalidArgument):
			h.writeError(ctx, w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
		default:
			slog.ErrorContext(ctx, "tier query failed", "tier", tier, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read index", http.StatusInternalServerError)
		}
		return
	}

	if refs == nil {
		refs = []RecordRef{}
	}
	meta["count"] = len(refs)
	h.writeData(ctx, w, http.StatusOK, refs, meta)
}

// knownState reports what can still be said about the stored index after a
// failed rebuild.
func (h *Handler) knownState(ctx context.Context) map[string]interface{} {
	state := map[string]interface{}{}
	exists, err := h.query.Exists(ctx)
	if err != nil {
		return state
	}
	state["exists"] = exists
	if exists {
		if summary, err := h.query.Stats(ctx); err == nil && summary != nil {
			state["summary"] = summary
		}
	}
	return state
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, status int, data interface{}, meta map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{"data": data}
	if meta != nil {
		resp["meta"] = meta
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeErrorWithState(ctx, w, code, message, status, nil)
}

func (h *Handler) writeErrorWithState(ctx context.Context, w http.ResponseWriter, code, message string, status int, state map[string]interface{}) {
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
