package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"salonindex/features/index"
)

const (
	defaultTierLimit = 25
	maxTierLimit     = 200
)

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type TierArgs struct {
	Tier            string `json:"tier"`
	TopPerPartition int    `json:"top_per_partition,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var emptySchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

var tools = []Tool{
	{
		Name: "salon_index_stats",
		Description: `Overview tool. Returns the review-tier index summary: when it was generated, how many records and partitions it covers, which partitions failed, and the size of each tier.

USAGE EXAMPLE:
salon_index_stats()`,
		InputSchema: emptySchema,
	},
	{
		Name: "salon_tier_records",
		Description: `Listing tool. Returns salons in a review tier (50+, 100+, 200+, 500+), highest review count first. Set top_per_partition to spread results across cities instead of letting big metros dominate.

USAGE EXAMPLES:
- salon_tier_records(tier="200+")
- salon_tier_records(tier="100", top_per_partition=3, limit=50)`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tier": map[string]string{
					"type":        "string",
					"description": "Review tier: 50, 100, 200 or 500 (a trailing + is accepted)",
				},
				"top_per_partition": map[string]interface{}{
					"type":        "integer",
					"description": "Keep at most this many salons per state/city",
					"minimum":     1,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Max results to return (default 25)",
					"minimum":     1,
					"maximum":     maxTierLimit,
				},
			},
			"required": []string{"tier"},
		},
	},
	{
		Name: "salon_enrichment_progress",
		Description: `Status tool. Returns the current or most recent enrichment run: status, counters and the tail of its log.

USAGE EXAMPLE:
salon_enrichment_progress()`,
		InputSchema: emptySchema,
	},
	{
		Name: "salon_stop_status",
		Description: `Status tool. Returns pending stop signals and lifetime stop counters. A pending signal blocks new enrichment runs until it is cleared.

USAGE EXAMPLE:
salon_stop_status()`,
		InputSchema: emptySchema,
	},
}

func (h *Handler) callTool(ctx context.Context, id interface{}, params CallParams) *JSONRPCResponse {
	var (
		text string
		err  error
	)

	switch params.Name {
	case "salon_index_stats":
		text, err = h.indexStats(ctx)
	case "salon_tier_records":
		var args TierArgs
		if len(params.Arguments) > 0 {
			if uerr := json.Unmarshal(params.Arguments, &args); uerr != nil {
				resp := makeErrorResponse(id, ErrInvalidParams, "Invalid tier arguments")
				return &resp
			}
		}
		text, err = h.tierRecords(ctx, args)
		if errors.Is(err, index.ErrInvalidTier) || errors.Is(err, index.ErrInvalidArgument) {
			resp := makeErrorResponse(id, ErrInvalidParams, err.Error())
			return &resp
		}
	case "salon_enrichment_progress":
		p, perr := h.progress.Load(ctx)
		if perr == nil {
			text, perr = toJSON(p)
		}
		err = perr
	case "salon_stop_status":
		s, serr := h.stops.Stats(ctx)
		if serr == nil {
			text, serr = toJSON(s)
		}
		err = serr
	default:
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		resp := makeErrorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
		return &resp
	}

	if err != nil {
		slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      id,
			Result: ToolResult{
				Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}},
				IsError: true,
			},
		}
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func (h *Handler) indexStats(ctx context.Context) (string, error) {
	summary, err := h.index.Stats(ctx)
	if err != nil {
		return "", err
	}
	if summary == nil {
		return "No index has been generated yet.", nil
	}
	return toJSON(summary)
}

func (h *Handler) tierRecords(ctx context.Context, args TierArgs) (string, error) {
	tier, err := index.ParseTier(args.Tier)
	if err != nil {
		return "", err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultTierLimit
	}
	if limit > maxTierLimit {
		limit = maxTierLimit
	}

	var refs []index.RecordRef
	if args.TopPerPartition > 0 {
		refs, err = h.index.ByTierWithDiversity(ctx, tier, args.TopPerPartition)
	} else {
		refs, err = h.index.ByTier(ctx, tier)
	}
	if errors.Is(err, index.ErrIndexNotFound) {
		return "No index has been generated yet. Regenerate it before listing tiers.", nil
	}
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return fmt.Sprintf("No salons in tier %s.", tier), nil
	}

	total := len(refs)
	if total > limit {
		refs = refs[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tier %s: showing %d of %d salons\n\n", tier, len(refs), total)
	for i, r := range refs {
		fmt.Fprintf(&b, "%d. %s (%s, %s) - %d reviews", i+1, r.Name, r.City, r.State, r.ReviewCount)
		if r.Rating > 0 {
			fmt.Fprintf(&b, ", rating %.1f", r.Rating)
		}
		fmt.Fprintf(&b, " [id: %s]\n", r.ID)
	}
	return b.String(), nil
}

func toJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(b), nil
}
