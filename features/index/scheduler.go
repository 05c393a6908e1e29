package index

import (
	"context"
	"log/slog"
	"time"
)

type Rebuilder interface {
	Rebuild(ctx context.Context) (*Index, error)
}

// Scheduler rebuilds the index on a fixed interval.
type Scheduler struct {
	builder  Rebuilder
	interval time.Duration
}

func NewScheduler(builder Rebuilder, interval time.Duration) *Scheduler {
	return &Scheduler{builder: builder, interval: interval}
}

// Start blocks until ctx is cancelled. It does not rebuild immediately; the
// stored index keeps serving until the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	slog.InfoContext(ctx, "index rebuild scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "index rebuild scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.builder.Rebuild(ctx); err != nil {
				slog.ErrorContext(ctx, "scheduled index rebuild failed", "error", err)
			}
		}
	}
}
