package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrInvalidSettings = errors.New("invalid settings")

type Settings struct {
	ID                  int    `json:"-"`
	GeminiAPIKey        string `json:"gemini_api_key"`
	GeminiModel         string `json:"gemini_model"`
	EnrichRatePerMinute int    `json:"enrich_rate_per_minute"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.EnrichRatePerMinute < 0 {
		return fmt.Errorf("%w: enrich_rate_per_minute must not be negative", ErrInvalidSettings)
	}
	return s.repo.Update(ctx, set)
}

// RatePerMinute returns the stored enrichment pace. Zero means unset.
func (s *Service) RatePerMinute(ctx context.Context) (int, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return 0, err
	}
	return set.EnrichRatePerMinute, nil
}

// Seed fills empty stored values from the environment. Values already set
// through the API win.
func (s *Service) Seed(ctx context.Context, apiKey, model string, ratePerMinute int) error {
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	changed := false
	if cur.GeminiAPIKey == "" && apiKey != "" {
		cur.GeminiAPIKey = apiKey
		changed = true
	}
	if cur.GeminiModel == "" && model != "" {
		cur.GeminiModel = model
		changed = true
	}
	if cur.EnrichRatePerMinute == 0 && ratePerMinute > 0 {
		cur.EnrichRatePerMinute = ratePerMinute
		changed = true
	}
	if !changed {
		return nil
	}

	slog.InfoContext(ctx, "seeding settings from environment")
	return s.repo.Update(ctx, cur)
}
