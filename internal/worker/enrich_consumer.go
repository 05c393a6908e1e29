package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"salonindex/features/enrichment"
	"salonindex/internal/middleware"
)

// EnrichConsumer executes queued enrichment runs. One message is one run; a
// message is finished as soon as its plan is claimed.
type EnrichConsumer struct {
	plans PlanStore
	runs  RunExecutor
}

func NewEnrichConsumer(p PlanStore, r RunExecutor) *EnrichConsumer {
	return &EnrichConsumer{plans: p, runs: r}
}

func (h *EnrichConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg enrichment.RunMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if msg.RunID == "" {
		slog.Error("poison pill: run message without run id")
		return nil
	}

	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx = middleware.WithRunID(ctx, msg.RunID)

	plan, err := h.plans.Claim(ctx, msg.RunID)
	switch {
	case errors.Is(err, enrichment.ErrPlanClaimed):
		slog.WarnContext(ctx, "run already claimed, dropping redelivery")
		return nil
	case errors.Is(err, enrichment.ErrPlanNotFound):
		slog.WarnContext(ctx, "run plan missing, dropping message")
		return nil
	case err != nil:
		slog.ErrorContext(ctx, "failed to claim run plan", "error", err)
		return err // Retry
	}

	// The claim already prevents a second execution, so the message is done.
	// Finishing now keeps nsqd from timing it out and requeueing it while
	// the run is still going.
	m.DisableAutoResponse()
	m.Finish()

	slog.InfoContext(ctx, "executing enrichment run", "records", len(plan.Records))
	status, err := h.runs.Run(ctx, plan.RunID, plan.Records)
	if err != nil {
		// the run has already been finished as failed; a retry would find the plan claimed
		slog.ErrorContext(ctx, "enrichment run failed", "status", status, "error", err)
	} else {
		slog.InfoContext(ctx, "enrichment run finished", "status", status)
	}

	if err := h.plans.Delete(ctx, plan.RunID); err != nil {
		slog.WarnContext(ctx, "failed to delete run plan", "error", err)
	}
	return nil
}
