package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"salonindex/features/index"
	"salonindex/features/progress"
	"salonindex/features/stop"
)

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Stats(ctx context.Context) (*index.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*index.Summary), args.Error(1)
}

func (m *MockIndex) ByTier(ctx context.Context, tier index.Tier) ([]index.RecordRef, error) {
	args := m.Called(ctx, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]index.RecordRef), args.Error(1)
}

func (m *MockIndex) ByTierWithDiversity(ctx context.Context, tier index.Tier, n int) ([]index.RecordRef, error) {
	args := m.Called(ctx, tier, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]index.RecordRef), args.Error(1)
}

type staticProgress struct {
	p   *progress.Progress
	err error
}

func (s staticProgress) Load(ctx context.Context) (*progress.Progress, error) { return s.p, s.err }

type staticStops struct{ s *stop.Stats }

func (s staticStops) Stats(ctx context.Context) (*stop.Stats, error) { return s.s, nil }

func call(t *testing.T, h *Handler, name string, args interface{}) JSONRPCResponse {
	t.Helper()
	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "method": "tools/call", "id": 1, "params": params})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func resultText(t *testing.T, resp JSONRPCResponse) (string, bool) {
	t.Helper()
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "expected result, got error %v", resp.Error)
	content := result["content"].([]interface{})
	isErr, _ := result["isError"].(bool)
	return content[0].(map[string]interface{})["text"].(string), isErr
}

func newTestHandler(idx IndexReader) *Handler {
	p := &progress.Progress{Status: progress.StatusRunning, IsRunning: true, RunID: "run-1", Processed: 2, Total: 5}
	return NewHandler(idx, staticProgress{p: p}, staticStops{&stop.Stats{TotalIssued: 1}})
}

func TestToolsList(t *testing.T) {
	h := newTestHandler(new(MockIndex))
	body := []byte(`{"jsonrpc":"2.0","method":"tools/list","id":7}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body)))

	var resp struct {
		Result ListToolsResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	names := make([]string, len(resp.Result.Tools))
	for i, tool := range resp.Result.Tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{"salon_index_stats", "salon_tier_records", "salon_enrichment_progress", "salon_stop_status"}, names)
}

func TestTierRecords(t *testing.T) {
	refs := []index.RecordRef{
		{ID: "a", Name: "Luxe Nails", State: "CA", City: "Fresno", ReviewCount: 512, Rating: 4.8},
		{ID: "b", Name: "Glow", State: "NV", City: "Reno", ReviewCount: 230},
		{ID: "c", Name: "Brow Bar", State: "CA", City: "Fresno", ReviewCount: 210},
	}

	t.Run("Ranked listing with limit", func(t *testing.T) {
		idx := new(MockIndex)
		idx.On("ByTier", mock.Anything, index.Tier200).Return(refs, nil)

		text, isErr := resultText(t, call(t, newTestHandler(idx), "salon_tier_records", map[string]interface{}{"tier": "200", "limit": 2}))
		assert.False(t, isErr)
		assert.Contains(t, text, "showing 2 of 3 salons")
		assert.Contains(t, text, "1. Luxe Nails (Fresno, CA) - 512 reviews, rating 4.8 [id: a]")
		assert.NotContains(t, text, "Brow Bar")
	})

	t.Run("Diversity", func(t *testing.T) {
		idx := new(MockIndex)
		idx.On("ByTierWithDiversity", mock.Anything, index.Tier200, 1).Return(refs[:2], nil)

		text, _ := resultText(t, call(t, newTestHandler(idx), "salon_tier_records", map[string]interface{}{"tier": "200+", "top_per_partition": 1}))
		assert.Contains(t, text, "showing 2 of 2 salons")
		idx.AssertExpectations(t)
	})

	t.Run("No index", func(t *testing.T) {
		idx := new(MockIndex)
		idx.On("ByTier", mock.Anything, index.Tier50).Return(nil, index.ErrIndexNotFound)

		text, isErr := resultText(t, call(t, newTestHandler(idx), "salon_tier_records", map[string]interface{}{"tier": "50"}))
		assert.False(t, isErr)
		assert.Contains(t, text, "No index has been generated yet")
	})

	t.Run("Invalid tier", func(t *testing.T) {
		resp := call(t, newTestHandler(new(MockIndex)), "salon_tier_records", map[string]interface{}{"tier": "75"})
		require.NotNil(t, resp.Error)
		assert.EqualValues(t, ErrInvalidParams, resp.Error.(map[string]interface{})["code"])
	})

	t.Run("Store failure", func(t *testing.T) {
		idx := new(MockIndex)
		idx.On("ByTier", mock.Anything, index.Tier500).Return(nil, errors.New("blob store unavailable"))

		text, isErr := resultText(t, call(t, newTestHandler(idx), "salon_tier_records", map[string]interface{}{"tier": "500"}))
		assert.True(t, isErr)
		assert.Contains(t, text, "blob store unavailable")
	})
}

func TestStatusTools(t *testing.T) {
	idx := new(MockIndex)
	idx.On("Stats", mock.Anything).Return(nil, nil)
	h := newTestHandler(idx)

	text, _ := resultText(t, call(t, h, "salon_index_stats", nil))
	assert.Equal(t, "No index has been generated yet.", text)

	text, _ = resultText(t, call(t, h, "salon_enrichment_progress", nil))
	assert.Contains(t, text, `"runId": "run-1"`)

	text, _ = resultText(t, call(t, h, "salon_stop_status", nil))
	assert.Contains(t, text, `"totalIssued": 1`)

	resp := call(t, h, "unknown_tool", nil)
	require.NotNil(t, resp.Error)
	assert.EqualValues(t, ErrMethodNotFound, resp.Error.(map[string]interface{})["code"])
}

func TestHandler_HandleMessage(t *testing.T) {
	t.Run("Missing session id", func(t *testing.T) {
		h := newTestHandler(new(MockIndex))
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown session", func(t *testing.T) {
		h := newTestHandler(new(MockIndex))
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		h := newTestHandler(new(MockIndex))
		h.sessions["s1"] = make(chan string, 1)
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBufferString("{invalid")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Response delivered to session", func(t *testing.T) {
		h := newTestHandler(new(MockIndex))
		ch := make(chan string, 1)
		h.sessions["s1"] = ch

		rec := httptest.NewRecorder()
		h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"ping","id":3}`)))
		assert.Equal(t, http.StatusAccepted, rec.Code)

		msg := <-ch
		assert.JSONEq(t, `{"jsonrpc":"2.0","result":{},"id":3}`, msg)
	})
}
