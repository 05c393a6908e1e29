package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
	"salonindex/features/index"
	"salonindex/features/progress"
	"salonindex/features/stop"
	"salonindex/internal/middleware"
)

type IndexStats interface {
	Stats(ctx context.Context) (*index.Summary, error)
}

type ProgressReader interface {
	Load(ctx context.Context) (*progress.Progress, error)
}

type StopStats interface {
	Stats(ctx context.Context) (*stop.Stats, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	index    IndexStats
	progress ProgressReader
	stops    StopStats
	jobRepo  JobRepo
}

func NewHandler(i IndexStats, p ProgressReader, s StopStats, j JobRepo) *Handler {
	return &Handler{index: i, progress: p, stops: s, jobRepo: j}
}

// StatsResponse is the dashboard view. A section that could not be read is
// left empty and named in Errors.
type StatsResponse struct {
	IndexExists bool               `json:"index_exists"`
	Index       *index.Summary     `json:"index,omitempty"`
	Progress    *progress.Progress `json:"progress,omitempty"`
	Stop        *stop.Stats        `json:"stop,omitempty"`
	FailedJobs  *int               `json:"failed_jobs,omitempty"`
	Errors      map[string]string  `json:"errors,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	resp := h.collect(ctx)
	if len(resp.Errors) == 4 {
		slog.ErrorContext(ctx, "failed to read any stats", "errors", resp.Errors, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) collect(ctx context.Context) StatsResponse {
	var (
		resp StatsResponse
		mu   sync.Mutex
		g    errgroup.Group
	)
	fail := func(section string, err error) {
		slog.WarnContext(ctx, "stats section unavailable", "section", section, "error", err)
		mu.Lock()
		defer mu.Unlock()
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[section] = err.Error()
	}

	g.Go(func() error {
		summary, err := h.index.Stats(ctx)
		if err != nil {
			fail("index", err)
			return nil
		}
		mu.Lock()
		resp.Index = summary
		resp.IndexExists = summary != nil
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		p, err := h.progress.Load(ctx)
		if err != nil {
			fail("progress", err)
			return nil
		}
		mu.Lock()
		resp.Progress = p
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		s, err := h.stops.Stats(ctx)
		if err != nil {
			fail("stop", err)
			return nil
		}
		mu.Lock()
		resp.Stop = s
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		n, err := h.jobRepo.Count(ctx)
		if err != nil {
			fail("failed_jobs", err)
			return nil
		}
		mu.Lock()
		resp.FailedJobs = &n
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	return resp
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
