package index

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"salonindex/features/business"
)

const (
	// Key is the blob key the current index is stored under.
	Key           = "review-tier-index"
	SchemaVersion = 2
)

var (
	ErrIndexNotFound   = errors.New("review-tier index not found")
	ErrInvalidTier     = errors.New("invalid review tier")
	ErrScanIncomplete  = errors.New("index scan incomplete")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Tier string

const (
	Tier50  Tier = "50+"
	Tier100 Tier = "100+"
	Tier200 Tier = "200+"
	Tier500 Tier = "500+"
)

// Tiers is ordered loosest first.
var Tiers = []Tier{Tier50, Tier100, Tier200, Tier500}

var thresholds = map[Tier]int{
	Tier50:  50,
	Tier100: 100,
	Tier200: 200,
	Tier500: 500,
}

func (t Tier) Threshold() int {
	return thresholds[t]
}

// ParseTier accepts both "100+" and "100".
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "+") {
		s += "+"
	}
	t := Tier(s)
	if _, ok := thresholds[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// RecordRef is the slice of a record kept in the index.
type RecordRef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	State       string  `json:"state"`
	City        string  `json:"city"`
	ReviewCount int     `json:"reviewCount"`
	Rating      float64 `json:"rating"`
	Slug        string  `json:"slug"`
}

func refFromRecord(r business.Record) RecordRef {
	return RecordRef{
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

func (r RecordRef) PartitionKey() string {
	return business.Partition{State: r.State, City: r.City}.Key()
}

type PartitionStat struct {
	Partition    string `json:"partition"`
	Count50Plus  int    `json:"count50Plus"`
	Count100Plus int    `json:"count100Plus"`
	Count200Plus int    `json:"count200Plus"`
	Count500Plus int    `json:"count500Plus"`
	Total        int    `json:"total"`
}

func (s *PartitionStat) add(reviewCount int) {
	s.Total++
	if reviewCount >= 50 {
		s.Count50Plus++
	}
	if reviewCount >= 100 {
		s.Count100Plus++
	}
	if reviewCount >= 200 {
		s.Count200Plus++
	}
	if reviewCount >= 500 {
		s.Count500Plus++
	}
}

type Index struct {
	Version            int                  `json:"version"`
	GeneratedAt        time.Time            `json:"generatedAt"`
	TotalRecords       int                  `json:"totalRecords"`
	PartitionsIncluded int                  `json:"partitionsIncluded"`
	PartitionsFailed   []string             `json:"partitionsFailed,omitempty"`
	Tiers              map[Tier][]RecordRef `json:"tiers"`
	PartitionStats     []PartitionStat      `json:"partitionStats"`
}

// Summary is the index without its record lists.
type Summary struct {
	Version            int          `json:"version"`
	GeneratedAt        time.Time    `json:"generatedAt"`
	TotalRecords       int          `json:"totalRecords"`
	PartitionsIncluded int          `json:"partitionsIncluded"`
	PartitionsFailed   int          `json:"partitionsFailed"`
	TierCounts         map[Tier]int `json:"tierCounts"`
}

func (idx *Index) Summary() *Summary {
	s := &Summary{
		Version:            idx.Version,
		GeneratedAt:        idx.GeneratedAt,
		TotalRecords:       idx.TotalRecords,
		PartitionsIncluded: idx.PartitionsIncluded,
		PartitionsFailed:   len(idx.PartitionsFailed),
		TierCounts:         make(map[Tier]int, len(Tiers)),
	}
	for _, t := range Tiers {
		s.TierCounts[t] = len(idx.Tiers[t])
	}
	return s
}
