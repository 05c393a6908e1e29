package enrichment

import (
	"context"
	"errors"
	"fmt"

	"salonindex/features/business"
	"salonindex/features/progress"
	"salonindex/features/stop"
)

var (
	ErrJobRunning      = errors.New("an enrichment job is already running")
	ErrStopPending     = errors.New("a stop signal is pending")
	ErrNoRecords       = errors.New("no records to enrich")
	ErrInvalidStrategy = errors.New("invalid selection strategy")
	ErrNotRunning      = errors.New("no enrichment job is running")
)

type Strategy string

const (
	StrategyAll             Strategy = "all"
	StrategyTopPerPartition Strategy = "top-per-partition"
)

// Worker enriches one record. Errors are per record and never abort a run.
type Worker interface {
	Enrich(ctx context.Context, rec business.Record) error
}

type Generator interface {
	Enrich(ctx context.Context, rec business.Record) (*business.EnrichedFields, error)
}

type Sink interface {
	UpsertEnrichment(ctx context.Context, id string, fields business.EnrichedFields) error
}

// UpsertingWorker generates fields for a record and stores them. The upsert
// is idempotent per record, so re-running a record is harmless.
type UpsertingWorker struct {
	Generator Generator
	Sink      Sink
}

func (w *UpsertingWorker) Enrich(ctx context.Context, rec business.Record) error {
	fields, err := w.Generator.Enrich(ctx, rec)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := w.Sink.UpsertEnrichment(ctx, rec.ID, *fields); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

type ProgressStore interface {
	Load(ctx context.Context) (*progress.Progress, error)
	Update(ctx context.Context, patch progress.Patch) (*progress.Progress, error)
	Reset(ctx context.Context, runID string, total int) (*progress.Progress, error)
}

type StopPoller interface {
	Active(ctx context.Context) (*stop.Signal, error)
}

// RateSource supplies the enrichment pace, in units per minute, when a run
// starts. Zero or an error falls back to the configured default.
type RateSource interface {
	RatePerMinute(ctx context.Context) (int, error)
}

// FailureRecorder keeps failed units for later inspection and retry.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, runID string, rec business.Record, cause error) error
}
