package job

import (
	"context"
	"fmt"
	"log/slog"

	"salonindex/features/business"
	"salonindex/features/enrichment"
)

// Recorder stores failed units on behalf of the orchestrator.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) RecordFailure(ctx context.Context, runID string, rec business.Record, cause error) error {
	return r.repo.Save(ctx, &Job{
		RecordID:   rec.ID,
		RecordName: rec.Name,
		RunID:      runID,
		Error:      cause.Error(),
	})
}

type RecordResolver interface {
	GetByIDs(ctx context.Context, ids []string) ([]business.Record, error)
}

type Starter interface {
	EnrichSelected(ctx context.Context, records []business.Record) (*enrichment.Launched, error)
}

type Service struct {
	repo    Repository
	records RecordResolver
	starter Starter
}

func NewService(repo Repository, records RecordResolver, starter Starter) *Service {
	return &Service{repo: repo, records: records, starter: starter}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry starts a one-record run for the failed job. The run goes through the
// same guard as any other start, so it is refused while a job is running.
func (s *Service) Retry(ctx context.Context, id string) (*enrichment.Launched, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	recs, err := s.records.GetByIDs(ctx, []string{job.RecordID})
	if err != nil {
		return nil, fmt.Errorf("resolve record %s: %w", job.RecordID, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordGone, job.RecordID)
	}

	launched, err := s.starter.EnrichSelected(ctx, recs)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		slog.WarnContext(ctx, "retry launched but failed row was not removed", "id", id, "error", err)
	}
	return launched, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
