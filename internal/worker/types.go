package worker

import (
	"context"

	"salonindex/features/business"
	"salonindex/features/enrichment"
	"salonindex/features/progress"
)

type PlanStore interface {
	Claim(ctx context.Context, runID string) (*enrichment.RunPlan, error)
	Delete(ctx context.Context, runID string) error
}

type RunExecutor interface {
	Run(ctx context.Context, runID string, records []business.Record) (progress.Status, error)
}
