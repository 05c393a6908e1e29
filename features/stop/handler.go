package stop

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"salonindex/internal/middleware"
)

type Service interface {
	IssueStop(ctx context.Context, source, reason string) (string, error)
	EmergencyStop(ctx context.Context, source, reason string) (string, error)
	ClearSignals(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*Stats, error)
}

type Handler struct {
	service Service
}

func NewHandler(s Service) *Handler {
	return &Handler{service: s}
}

type StopRequest struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.service.IssueStop)
}

func (h *Handler) Emergency(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.service.EmergencyStop)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, source, reason string) (string, error)) {
	ctx := r.Context()

	var req StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	id, err := fn(ctx, req.Source, req.Reason)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue stop", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to store stop signal", http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]string{"signalId": id},
	})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.ClearSignals(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clear stop signals", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to clear stop signals", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]int{"cleared": n},
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read stop stats", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "stop record unreadable", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": stats})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
