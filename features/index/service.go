package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonindex/internal/blobstore"
	"salonindex/internal/metrics"
	"salonindex/internal/middleware"
	"salonindex/internal/querylog"
)

// Service answers tier queries from the stored index. Every query costs one
// blob read regardless of how many partitions the build scanned.
type Service struct {
	store blobstore.Store
	qlog  *querylog.Logger
}

func NewService(store blobstore.Store, qlog *querylog.Logger) *Service {
	return &Service{store: store, qlog: qlog}
}

func (s *Service) Exists(ctx context.Context) (bool, error) {
	ok, err := s.store.Exists(ctx, Key)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	return ok, nil
}

// Load returns ErrIndexNotFound when no index has been saved yet.
func (s *Service) Load(ctx context.Context) (*Index, error) {
	var idx Index
	found, err := s.store.GetJSON(ctx, Key, &idx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if !found {
		return nil, ErrIndexNotFound
	}
	return &idx, nil
}

// Stats returns nil without error when no index exists.
func (s *Service) Stats(ctx context.Context) (*Summary, error) {
	idx, err := s.Load(ctx)
	if errors.Is(err, ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return idx.Summary(), nil
}

func (s *Service) ByTier(ctx context.Context, tier Tier) ([]RecordRef, error) {
	start := time.Now()
	if _, ok := thresholds[tier]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	idx, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	refs := idx.Tiers[tier]

	s.record(ctx, querylog.Entry{Kind: querylog.KindTier, Tier: string(tier), NumResults: len(refs)}, start)
	return refs, nil
}

// ByTierWithDiversity caps each partition's contribution to the tier at
// topPerPartition, keeping that partition's highest-review records.
func (s *Service) ByTierWithDiversity(ctx context.Context, tier Tier, topPerPartition int) ([]RecordRef, error) {
	start := time.Now()
	if _, ok := thresholds[tier]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	if topPerPartition <= 0 {
		return nil, fmt.Errorf("%w: top per partition must be positive, got %d", ErrInvalidArgument, topPerPartition)
	}

	idx, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	refs := SelectDiverse(idx.Tiers[tier], topPerPartition)

	s.record(ctx, querylog.Entry{
		Kind:            querylog.KindDiversity,
		Tier:            string(tier),
		TopPerPartition: topPerPartition,
		NumResults:      len(refs),
	}, start)
	return refs, nil
}

// SelectDiverse walks refs, already in tier order, and keeps the first n
// entries of each partition. Output order follows input order.
func SelectDiverse(refs []RecordRef, n int) []RecordRef {
	seen := make(map[string]int)
	out := make([]RecordRef, 0, len(refs))
	for _, r := range refs {
		key := r.PartitionKey()
		if seen[key] >= n {
			continue
		}
		seen[key]++
		out = append(out, r)
	}
	return out
}

func (s *Service) record(ctx context.Context, entry querylog.Entry, start time.Time) {
	entry.Duration = time.Since(start)
	entry.CorrelationID = middleware.GetCorrelationID(ctx)
	s.qlog.Log(entry)
	metrics.ObserveQuery(entry.Kind, entry.Duration)
}
