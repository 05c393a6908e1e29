package enrichment

import (
	"context"
	"fmt"
	"log/slog"

	"salonindex/features/business"
	"salonindex/features/index"
	"salonindex/features/progress"
)

type TierSource interface {
	ByTier(ctx context.Context, tier index.Tier) ([]index.RecordRef, error)
	ByTierWithDiversity(ctx context.Context, tier index.Tier, topPerPartition int) ([]index.RecordRef, error)
}

type RecordResolver interface {
	GetByIDs(ctx context.Context, ids []string) ([]business.Record, error)
}

type Service struct {
	orch     *Orchestrator
	tiers    TierSource
	records  RecordResolver
	launcher Launcher
}

func NewService(orch *Orchestrator, tiers TierSource, records RecordResolver, launcher Launcher) *Service {
	return &Service{orch: orch, tiers: tiers, records: records, launcher: launcher}
}

// Launched describes a run that was accepted and handed off.
type Launched struct {
	RunID string `json:"runId"`
	Total int    `json:"total"`
}

// EnrichSelected begins a run over records and returns without waiting for
// it. Progress is observable only through the progress record.
func (s *Service) EnrichSelected(ctx context.Context, records []business.Record) (*Launched, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	runID, err := s.orch.Begin(ctx, len(records))
	if err != nil {
		return nil, err
	}

	if err := s.launcher.Launch(ctx, runID, records); err != nil {
		slog.ErrorContext(ctx, "failed to launch enrichment run", "run_id", runID, "error", err)
		if aerr := s.orch.Abort(ctx, runID, err.Error()); aerr != nil {
			slog.ErrorContext(ctx, "failed to release job slot", "run_id", runID, "error", aerr)
		}
		return nil, fmt.Errorf("launch run: %w", err)
	}
	return &Launched{RunID: runID, Total: len(records)}, nil
}

// EnrichByIDs resolves ids against the record store. Unknown ids are skipped.
func (s *Service) EnrichByIDs(ctx context.Context, ids []string) (*Launched, error) {
	if len(ids) == 0 {
		return nil, ErrNoRecords
	}
	records, err := s.records.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve records: %w", err)
	}
	if len(records) < len(ids) {
		slog.WarnContext(ctx, "some requested records were not found", "requested", len(ids), "found", len(records))
	}
	return s.EnrichSelected(ctx, records)
}

// Release frees the job slot of a run that will not finish on its own.
func (s *Service) Release(ctx context.Context, source, reason string) (*progress.Progress, error) {
	return s.orch.Release(ctx, source, reason)
}

type TierRequest struct {
	Tier            index.Tier
	Strategy        Strategy
	TopPerPartition int
	// Limit caps the number of records after selection. Zero means no cap.
	Limit int
}

func (s *Service) EnrichTier(ctx context.Context, req TierRequest) (*Launched, error) {
	refs, err := s.selectTier(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(refs) > req.Limit {
		refs = refs[:req.Limit]
	}

	records := make([]business.Record, len(refs))
	for i, r := range refs {
		records[i] = business.Record{
			ID:          r.ID,
			Name:        r.Name,
			Address:     r.Address,
			State:       r.State,
			City:        r.City,
			ReviewCount: r.ReviewCount,
			Rating:      r.Rating,
			Slug:        r.Slug,
		}
	}
	return s.EnrichSelected(ctx, records)
}

func (s *Service) selectTier(ctx context.Context, req TierRequest) ([]index.RecordRef, error) {
	switch req.Strategy {
	case StrategyAll, "":
		return s.tiers.ByTier(ctx, req.Tier)
	case StrategyTopPerPartition:
		return s.tiers.ByTierWithDiversity(ctx, req.Tier, req.TopPerPartition)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, req.Strategy)
	}
}
