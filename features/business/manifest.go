package business

import (
	"context"

	"salonindex/internal/config"
)

// manifestRepo enumerates partitions from a region manifest instead of the
// table, so a deployment can restrict which regions are indexed.
type manifestRepo struct {
	Repository
	partitions []Partition
}

// WithManifest returns repo unchanged when m lists no regions.
func WithManifest(repo Repository, m *config.RegionManifest) Repository {
	if m.Count() == 0 {
		return repo
	}
	var parts []Partition
	for _, region := range m.Regions {
		for _, city := range region.Cities {
			parts = append(parts, Partition{State: region.State, City: city})
		}
	}
	return &manifestRepo{Repository: repo, partitions: parts}
}

func (m *manifestRepo) ListPartitions(ctx context.Context) ([]Partition, error) {
	out := make([]Partition, len(m.partitions))
	copy(out, m.partitions)
	return out, nil
}
