package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"salonindex/features/business"
	"salonindex/internal/blobstore"
	"salonindex/internal/config"
	"salonindex/internal/middleware"
)

var (
	ErrPlanNotFound = errors.New("run plan not found")
	ErrPlanClaimed  = errors.New("run plan already claimed")
)

// Launcher hands a begun run to something that outlives the request.
type Launcher interface {
	Launch(ctx context.Context, runID string, records []business.Record) error
}

// GoroutineLauncher runs the job in a detached goroutine of this process.
type GoroutineLauncher struct {
	orch *Orchestrator
	wg   sync.WaitGroup
}

func NewGoroutineLauncher(orch *Orchestrator) *GoroutineLauncher {
	return &GoroutineLauncher{orch: orch}
}

func (l *GoroutineLauncher) Launch(ctx context.Context, runID string, records []business.Record) error {
	detached := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if _, err := l.orch.Run(detached, runID, records); err != nil {
			slog.ErrorContext(detached, "detached enrichment run failed", "run_id", runID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every launched run has returned.
func (l *GoroutineLauncher) Wait() {
	l.wg.Wait()
}

// RunPlan is the record list of a queued run. Queue messages carry only the
// run id; the plan itself lives in the blob store.
type RunPlan struct {
	RunID     string            `json:"runId"`
	Records   []business.Record `json:"records"`
	CreatedAt time.Time         `json:"createdAt"`
	Claimed   bool              `json:"claimed"`
	ClaimedAt *time.Time        `json:"claimedAt,omitempty"`
}

type RunMessage struct {
	RunID         string `json:"run_id"`
	CorrelationID string `json:"correlation_id"`
}

type PlanStore struct {
	blobs blobstore.Store
}

func NewPlanStore(blobs blobstore.Store) *PlanStore {
	return &PlanStore{blobs: blobs}
}

func planKey(runID string) string {
	return "enrichment-run/" + runID
}

func (s *PlanStore) Save(ctx context.Context, plan *RunPlan) error {
	if err := s.blobs.PutJSON(ctx, planKey(plan.RunID), plan); err != nil {
		return fmt.Errorf("save run plan: %w", err)
	}
	return nil
}

// Claim marks the plan as taken and returns it. A redelivered message finds
// the plan claimed and gets ErrPlanClaimed, so a run executes at most once.
func (s *PlanStore) Claim(ctx context.Context, runID string) (*RunPlan, error) {
	var plan RunPlan
	found, err := s.blobs.GetJSON(ctx, planKey(runID), &plan)
	if err != nil {
		return nil, fmt.Errorf("load run plan: %w", err)
	}
	if !found {
		return nil, ErrPlanNotFound
	}
	if plan.Claimed {
		return nil, ErrPlanClaimed
	}

	now := time.Now().UTC()
	plan.Claimed = true
	plan.ClaimedAt = &now
	if err := s.blobs.PutJSON(ctx, planKey(runID), &plan); err != nil {
		return nil, fmt.Errorf("claim run plan: %w", err)
	}
	return &plan, nil
}

func (s *PlanStore) Delete(ctx context.Context, runID string) error {
	return s.blobs.Delete(ctx, planKey(runID))
}

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// QueueLauncher stores the plan and publishes the run id to the enrichment
// topic for a worker process to pick up.
type QueueLauncher struct {
	plans     *PlanStore
	publisher Publisher
}

func NewQueueLauncher(plans *PlanStore, publisher Publisher) *QueueLauncher {
	return &QueueLauncher{plans: plans, publisher: publisher}
}

func (l *QueueLauncher) Launch(ctx context.Context, runID string, records []business.Record) error {
	plan := &RunPlan{RunID: runID, Records: records, CreatedAt: time.Now().UTC()}
	if err := l.plans.Save(ctx, plan); err != nil {
		return err
	}

	body, err := json.Marshal(RunMessage{RunID: runID, CorrelationID: middleware.GetCorrelationID(ctx)})
	if err != nil {
		return fmt.Errorf("encode run message: %w", err)
	}
	if err := l.publisher.Publish(config.TopicEnrichRun, body); err != nil {
		if derr := l.plans.Delete(ctx, runID); derr != nil {
			slog.WarnContext(ctx, "failed to drop unpublished run plan", "run_id", runID, "error", derr)
		}
		return fmt.Errorf("publish run %s: %w", runID, err)
	}
	return nil
}
