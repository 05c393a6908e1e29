package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"salonindex/internal/middleware"
)

type Loader interface {
	Load(ctx context.Context) (*Progress, error)
}

type Handler struct {
	store Loader
}

func NewHandler(s Loader) *Handler {
	return &Handler{store: s}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.store.Load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load progress", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		resp := map[string]interface{}{
			"error": map[string]string{
				"code":    "INTERNAL_ERROR",
				"message": "progress record unreadable",
			},
			"correlationId": middleware.GetCorrelationID(ctx),
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to encode error response", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": p}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
