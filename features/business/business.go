package business

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("business not found")

// Record is a salon listing as stored by the directory. Read-only here.
type Record struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	State       string  `json:"state"`
	City        string  `json:"city"`
	ReviewCount int     `json:"reviewCount"`
	Rating      float64 `json:"rating"`
	Slug        string  `json:"slug"`
}

// Partition is one (state, city) slice of the directory.
type Partition struct {
	State string `json:"state"`
	City  string `json:"city"`
}

func (p Partition) Key() string {
	return p.State + "/" + p.City
}

// EnrichedFields is the generated content stored next to a record.
type EnrichedFields struct {
	Description string    `json:"description"`
	Specialties []string  `json:"specialties"`
	PriceRange  string    `json:"priceRange"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generatedAt"`
}
