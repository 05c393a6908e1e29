package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"salonindex/features/business"
)

const DefaultModel = "gemini-1.5-flash"

var ErrEmptyResponse = errors.New("empty enrichment response")

// Enricher generates listing copy with a fixed key and model.
type Enricher struct {
	client *genai.Client
	model  string
}

func NewEnricher(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Enricher, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, append(opts, option.WithAPIKey(apiKey))...)
	if err != nil {
		return nil, err
	}
	return &Enricher{client: client, model: model}, nil
}

func (e *Enricher) Enrich(ctx context.Context, rec business.Record) (*business.EnrichedFields, error) {
	return generate(ctx, e.client, e.model, rec)
}

func (e *Enricher) Close() error {
	return e.client.Close()
}

func BuildPrompt(rec business.Record) string {
	var b strings.Builder
	b.WriteString("You write short, factual directory copy for nail and beauty salons.\n")
	b.WriteString("Return a JSON object with keys \"description\" (2-3 sentences), ")
	b.WriteString("\"specialties\" (array of up to 5 short phrases) and \"priceRange\" (one of $, $$, $$$).\n")
	b.WriteString("Do not invent awards, owners or prices.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", rec.Name)
	if rec.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", rec.Address)
	}
	fmt.Fprintf(&b, "Location: %s, %s\n", rec.City, rec.State)
	fmt.Fprintf(&b, "Reviews: %d\n", rec.ReviewCount)
	if rec.Rating > 0 {
		fmt.Fprintf(&b, "Rating: %.1f\n", rec.Rating)
	}
	return b.String()
}

type generated struct {
	Description string   `json:"description"`
	Specialties []string `json:"specialties"`
	PriceRange  string   `json:"priceRange"`
}

// ParseFields decodes the model output, tolerating a fenced code block.
func ParseFields(text string) (*business.EnrichedFields, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var g generated
	if err := json.Unmarshal([]byte(text), &g); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}
	if strings.TrimSpace(g.Description) == "" {
		return nil, fmt.Errorf("%w: missing description", ErrEmptyResponse)
	}
	if g.Specialties == nil {
		g.Specialties = []string{}
	}
	return &business.EnrichedFields{
		Description: strings.TrimSpace(g.Description),
		Specialties: g.Specialties,
		PriceRange:  g.PriceRange,
	}, nil
}

func generate(ctx context.Context, client *genai.Client, model string, rec business.Record) (*business.EnrichedFields, error) {
	slog.DebugContext(ctx, "generating enrichment", "model", model, "record_id", rec.ID)

	m := client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.4)

	resp, err := m.GenerateContent(ctx, genai.Text(BuildPrompt(rec)))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	fields, err := ParseFields(responseText(resp))
	if err != nil {
		return nil, err
	}
	fields.Model = model
	fields.GeneratedAt = time.Now().UTC()
	return fields, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
