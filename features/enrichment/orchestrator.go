package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"salonindex/features/business"
	"salonindex/features/progress"
	"salonindex/internal/metrics"
	"salonindex/internal/middleware"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Orchestrator runs enrichment jobs one record at a time. All coordination
// with other processes goes through the progress record and the stop
// signals; the orchestrator keeps no state between calls.
type Orchestrator struct {
	progress ProgressStore
	stops    StopPoller
	worker   Worker
	failures FailureRecorder
	rates    RateSource
	pace     int // units per minute when rates has no value
	now      func() time.Time
	newRunID func() string
}

func NewOrchestrator(p ProgressStore, s StopPoller, w Worker, f FailureRecorder, ratePerMinute int) *Orchestrator {
	return &Orchestrator{
		progress: p,
		stops:    s,
		worker:   w,
		failures: f,
		pace:     ratePerMinute,
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
}

// WithRates makes every run read its pace from r, so a changed setting
// applies to the next run without a restart.
func (o *Orchestrator) WithRates(r RateSource) *Orchestrator {
	o.rates = r
	return o
}

func (o *Orchestrator) limiterFor(ctx context.Context) *rate.Limiter {
	perMinute := o.pace
	if o.rates != nil {
		n, err := o.rates.RatePerMinute(ctx)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "failed to read enrichment rate, using default", "default", perMinute, "error", err)
		case n > 0:
			perMinute = n
		}
	}
	return newLimiter(perMinute)
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Begin claims the single job slot and returns the new run id. It refuses
// while another job is running or a stop signal is pending, and leaves the
// progress record untouched in both cases.
//
// The store has no compare-and-swap, so two callers can both pass the
// running check. Re-reading after the reset lets the loser notice when the
// other write landed last; the window between the two writes stays open.
func (o *Orchestrator) Begin(ctx context.Context, total int) (string, error) {
	cur, err := o.progress.Load(ctx)
	if err != nil {
		return "", err
	}
	if cur.IsRunning {
		return "", fmt.Errorf("%w: run %s", ErrJobRunning, cur.RunID)
	}

	sig, err := o.stops.Active(ctx)
	if err != nil {
		return "", err
	}
	if sig != nil {
		return "", fmt.Errorf("%w: %s from %s", ErrStopPending, sig.ID, sig.Source)
	}

	runID := o.newRunID()
	if _, err := o.progress.Reset(ctx, runID, total); err != nil {
		return "", err
	}

	after, err := o.progress.Load(ctx)
	if err != nil {
		return "", err
	}
	if after.RunID != runID {
		return "", fmt.Errorf("%w: run %s started concurrently", ErrJobRunning, after.RunID)
	}

	slog.InfoContext(middleware.WithRunID(ctx, runID), "enrichment run started", "total", total)
	return runID, nil
}

// Run processes records in order until they are exhausted or a stop signal
// is seen. Stop signals are checked before every unit, so a stop posted
// while a unit is in flight halts the run before the next one starts.
// The returned error is set only for structural failures.
func (o *Orchestrator) Run(ctx context.Context, runID string, records []business.Record) (progress.Status, error) {
	ctx = middleware.WithRunID(ctx, runID)
	total := len(records)
	succeeded, failed := 0, 0
	limiter := o.limiterFor(ctx)

	for i, rec := range records {
		sig, err := o.stops.Active(ctx)
		if err != nil {
			return o.finish(ctx, runID, progress.StatusFailed, fmt.Sprintf("stop poll failed after %d/%d: %v", i, total, err), fmt.Errorf("poll stop signals: %w", err))
		}
		if sig != nil {
			line := fmt.Sprintf("stopped by %s (%s) after %d/%d: %s", sig.Source, sig.Severity, i, total, sig.Reason)
			return o.finish(ctx, runID, progress.StatusCancelled, line, nil)
		}

		if err := limiter.Wait(ctx); err != nil {
			return o.finish(ctx, runID, progress.StatusCancelled, fmt.Sprintf("interrupted after %d/%d: %v", i, total, err), nil)
		}

		var line string
		if err := o.worker.Enrich(ctx, rec); err != nil {
			failed++
			line = fmt.Sprintf("failed %s (%s): %v", rec.Name, rec.ID, err)
			slog.WarnContext(ctx, "enrichment unit failed", "record_id", rec.ID, "error", err)
			metrics.RecordUnit("failed")
			if o.failures != nil {
				if ferr := o.failures.RecordFailure(ctx, runID, rec, err); ferr != nil {
					slog.ErrorContext(ctx, "failed to record enrichment failure", "record_id", rec.ID, "error", ferr)
				}
			}
		} else {
			succeeded++
			line = fmt.Sprintf("enriched %s (%s)", rec.Name, rec.ID)
			metrics.RecordUnit("succeeded")
		}

		processed := i + 1
		if _, err := o.progress.Update(ctx, progress.Patch{
			RunID:     runID,
			Processed: &processed,
			Succeeded: &succeeded,
			Failed:    &failed,
			Append:    []string{line},
		}); err != nil {
			if errors.Is(err, progress.ErrSuperseded) {
				slog.WarnContext(ctx, "job slot was released, abandoning run", "processed", processed, "total", total)
				metrics.RecordRun(string(progress.StatusCancelled))
				return progress.StatusCancelled, nil
			}
			return o.finish(ctx, runID, progress.StatusFailed, fmt.Sprintf("progress write failed after %d/%d", processed, total), fmt.Errorf("persist progress: %w", err))
		}
	}

	line := fmt.Sprintf("completed: %d succeeded, %d failed of %d", succeeded, failed, total)
	return o.finish(ctx, runID, progress.StatusCompleted, line, nil)
}

// Abort releases the job slot for a run that never started, for example when
// it could not be handed to a worker.
func (o *Orchestrator) Abort(ctx context.Context, runID, reason string) error {
	_, err := o.finish(middleware.WithRunID(ctx, runID), runID, progress.StatusFailed, "aborted before start: "+reason, nil)
	return err
}

// Release frees the slot held by the current run, for runs whose process
// died before finishing. The run is marked FAILED. If it is in fact still
// alive it abandons itself at its next progress write.
func (o *Orchestrator) Release(ctx context.Context, source, reason string) (*progress.Progress, error) {
	cur, err := o.progress.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !cur.IsRunning {
		return nil, ErrNotRunning
	}

	line := fmt.Sprintf("released by %s after %d/%d", source, cur.Processed, cur.Total)
	if reason != "" {
		line += ": " + reason
	}
	if _, err := o.finish(middleware.WithRunID(ctx, cur.RunID), cur.RunID, progress.StatusFailed, line, nil); err != nil {
		return nil, err
	}
	return o.progress.Load(ctx)
}

func (o *Orchestrator) finish(ctx context.Context, runID string, status progress.Status, line string, cause error) (progress.Status, error) {
	// Releasing the slot must not be skipped because the caller went away.
	ctx = context.WithoutCancel(ctx)

	running := false
	finishedAt := o.now().UTC()
	_, err := o.progress.Update(ctx, progress.Patch{
		RunID:      runID,
		IsRunning:  &running,
		Status:     &status,
		FinishedAt: &finishedAt,
		Append:     []string{line},
	})
	metrics.RecordRun(string(status))

	if errors.Is(err, progress.ErrSuperseded) {
		slog.WarnContext(ctx, "job slot already released", "status", status)
		return status, cause
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to write final progress", "status", status, "error", err)
		if cause == nil {
			cause = fmt.Errorf("persist final progress: %w", err)
		}
		return progress.StatusFailed, cause
	}

	if cause != nil {
		slog.ErrorContext(ctx, "enrichment run failed", "status", status, "error", cause)
	} else {
		slog.InfoContext(ctx, "enrichment run finished", "status", status, "summary", line)
	}
	return status, cause
}
