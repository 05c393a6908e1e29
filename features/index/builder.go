package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"salonindex/features/business"
	"salonindex/internal/blobstore"
	"salonindex/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Source is the partitioned record store the builder scans.
type Source interface {
	ListPartitions(ctx context.Context) ([]business.Partition, error)
	Get(ctx context.Context, state, city string) ([]business.Record, error)
}

type Builder struct {
	source      Source
	store       blobstore.Store
	concurrency int
	now         func() time.Time
}

func NewBuilder(source Source, store blobstore.Store, concurrency int) *Builder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Builder{source: source, store: store, concurrency: concurrency, now: time.Now}
}

type partitionResult struct {
	records []business.Record
	err     error
}

// Build scans every partition and buckets records into tiers. A partition
// that fails to load is logged and left out. Build fails only when nothing
// could be scanned.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	start := time.Now()

	parts, err := b.source.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list partitions: %w", ErrScanIncomplete, err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no partitions to scan", ErrScanIncomplete)
	}

	// Fetches run in parallel; merging below walks partitions in enumeration
	// order so tie-breaking is identical across rebuilds.
	results := make([]partitionResult, len(parts))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, p := range parts {
		g.Go(func() error {
			records, err := b.source.Get(ctx, p.State, p.City)
			results[i] = partitionResult{records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanIncomplete, err)
	}

	idx := &Index{
		Version:     SchemaVersion,
		GeneratedAt: b.now().UTC(),
		Tiers:       make(map[Tier][]RecordRef, len(Tiers)),
	}
	for _, t := range Tiers {
		idx.Tiers[t] = []RecordRef{}
	}

	for i, p := range parts {
		res := results[i]
		if res.err != nil {
			slog.WarnContext(ctx, "skipping partition", "partition", p.Key(), "error", res.err)
			idx.PartitionsFailed = append(idx.PartitionsFailed, p.Key())
			continue
		}

		stat := PartitionStat{Partition: p.Key()}
		for _, rec := range res.records {
			stat.add(rec.ReviewCount)
			ref := refFromRecord(rec)
			for _, t := range Tiers {
				if rec.ReviewCount >= t.Threshold() {
					idx.Tiers[t] = append(idx.Tiers[t], ref)
				}
			}
		}
		idx.TotalRecords += stat.Total
		idx.PartitionsIncluded++
		idx.PartitionStats = append(idx.PartitionStats, stat)
	}

	metrics.ObserveIndexBuild(time.Since(start), len(idx.PartitionsFailed))

	if idx.PartitionsIncluded == 0 {
		return nil, fmt.Errorf("%w: all %d partitions failed", ErrScanIncomplete, len(parts))
	}

	for _, t := range Tiers {
		list := idx.Tiers[t]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].ReviewCount > list[j].ReviewCount
		})
	}

	slog.InfoContext(ctx, "index built",
		"total_records", idx.TotalRecords,
		"partitions", idx.PartitionsIncluded,
		"partitions_failed", len(idx.PartitionsFailed),
		"duration", time.Since(start))
	return idx, nil
}

// Save overwrites the stored index.
func (b *Builder) Save(ctx context.Context, idx *Index) error {
	if err := b.store.PutJSON(ctx, Key, idx); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Rebuild builds and saves. On any error the stored index is untouched.
func (b *Builder) Rebuild(ctx context.Context) (*Index, error) {
	idx, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Save(ctx, idx); err != nil {
		return nil, err
	}
	return idx, nil
}
