package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/api/option"

	"salonindex/features/business"
	"salonindex/internal/settings"
)

// DynamicEnricher re-reads the key and model from settings on every call so
// that a key rotated through the API takes effect without a restart.
type DynamicEnricher struct {
	settingsSvc  *settings.Service
	current      *Enricher
	currentKey   string
	currentModel string
	mu           sync.RWMutex
	clientOpts   []option.ClientOption
}

func NewDynamicEnricher(svc *settings.Service, opts ...option.ClientOption) *DynamicEnricher {
	return &DynamicEnricher{
		settingsSvc: svc,
		clientOpts:  opts,
	}
}

func (e *DynamicEnricher) Enrich(ctx context.Context, rec business.Record) (*business.EnrichedFields, error) {
	s, err := e.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if s.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	enricher, err := e.getEnricher(ctx, s.GeminiAPIKey, s.GeminiModel)
	if err != nil {
		return nil, err
	}
	return enricher.Enrich(ctx, rec)
}

// getEnricher returns the cached enricher, replacing it when the key or the
// model changed.
func (e *DynamicEnricher) getEnricher(ctx context.Context, key, model string) (*Enricher, error) {
	e.mu.RLock()
	if e.current != nil && e.currentKey == key && e.currentModel == model {
		defer e.mu.RUnlock()
		return e.current, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && e.currentKey == key && e.currentModel == model {
		return e.current, nil
	}

	if e.current != nil {
		if err := e.current.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	enricher, err := NewEnricher(ctx, key, model, e.clientOpts...)
	if err != nil {
		return nil, err
	}

	e.current = enricher
	e.currentKey, e.currentModel = key, model
	return enricher, nil
}

// Close releases the current client, if any.
func (e *DynamicEnricher) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	err := e.current.Close()
	e.current, e.currentKey, e.currentModel = nil, "", ""
	return err
}
