package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"salonindex/features/index"
	"salonindex/features/progress"
	"salonindex/features/stop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) EnrichTier(ctx context.Context, req TierRequest) (*Launched, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Launched), args.Error(1)
}

func (m *MockStarter) EnrichByIDs(ctx context.Context, ids []string) (*Launched, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Launched), args.Error(1)
}

func (m *MockStarter) Release(ctx context.Context, source, reason string) (*progress.Progress, error) {
	args := m.Called(ctx, source, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*progress.Progress), args.Error(1)
}

type staticProgress struct{ p *progress.Progress }

func (s staticProgress) Load(ctx context.Context) (*progress.Progress, error) { return s.p, nil }

type staticStops struct{ s *stop.Stats }

func (s staticStops) Stats(ctx context.Context) (*stop.Stats, error) { return s.s, nil }

func newTestHandler(starter Starter) *Handler {
	running := &progress.Progress{IsRunning: true, Status: progress.StatusRunning, RunID: "run-1", Processed: 3, Total: 9}
	return NewHandler(starter, staticProgress{running}, staticStops{&stop.Stats{Pending: 1, TotalIssued: 1}})
}

func TestHandler_StartTier(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(m *MockStarter)
		wantStatus int
		wantCode   string
	}{
		{
			name: "Accepted",
			body: `{"tier":"100+","strategy":"top-per-partition","top_per_partition":2,"limit":50}`,
			setup: func(m *MockStarter) {
				m.On("EnrichTier", mock.Anything, TierRequest{Tier: index.Tier100, Strategy: StrategyTopPerPartition, TopPerPartition: 2, Limit: 50}).
					Return(&Launched{RunID: "run-2", Total: 50}, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Bad tier",
			body:       `{"tier":"75"}`,
			setup:      func(m *MockStarter) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "Negative limit",
			body:       `{"tier":"100","limit":-1}`,
			setup:      func(m *MockStarter) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "Already running",
			body: `{"tier":"200"}`,
			setup: func(m *MockStarter) {
				m.On("EnrichTier", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: run run-1", ErrJobRunning))
			},
			wantStatus: http.StatusConflict,
			wantCode:   "JOB_RUNNING",
		},
		{
			name: "Stop pending",
			body: `{"tier":"200"}`,
			setup: func(m *MockStarter) {
				m.On("EnrichTier", mock.Anything, mock.Anything).Return(nil, ErrStopPending)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "STOP_PENDING",
		},
		{
			name: "No index",
			body: `{"tier":"500"}`,
			setup: func(m *MockStarter) {
				m.On("EnrichTier", mock.Anything, mock.Anything).Return(nil, index.ErrIndexNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "INDEX_NOT_FOUND",
		},
		{
			name: "Empty tier",
			body: `{"tier":"500"}`,
			setup: func(m *MockStarter) {
				m.On("EnrichTier", mock.Anything, mock.Anything).Return(nil, ErrNoRecords)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "NO_RECORDS",
		},
		{
			name: "Store down",
			body: `{"tier":"500"}`,
			setup: func(m *MockStarter) {
				m.On("EnrichTier", mock.Anything, mock.Anything).Return(nil, errors.New("load progress: blob store unavailable: get enrichment-progress"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockStarter)
			tt.setup(m)

			w := httptest.NewRecorder()
			newTestHandler(m).StartTier(w, httptest.NewRequest("POST", "/enrichment/tier", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"].(map[string]interface{})["code"])
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "failed to start enrichment", body["error"].(map[string]interface{})["message"])
			}
			m.AssertExpectations(t)
		})
	}
}

func TestHandler_StartTier_ConflictCarriesState(t *testing.T) {
	m := new(MockStarter)
	m.On("EnrichTier", mock.Anything, mock.Anything).Return(nil, ErrJobRunning)

	w := httptest.NewRecorder()
	newTestHandler(m).StartTier(w, httptest.NewRequest("POST", "/enrichment/tier", strings.NewReader(`{"tier":"50"}`)))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	state := body["state"].(map[string]interface{})
	p := state["progress"].(map[string]interface{})
	assert.Equal(t, "run-1", p["runId"])
	assert.Equal(t, float64(3), p["processed"])
}

func TestHandler_StartSelected(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		m := new(MockStarter)
		m.On("EnrichByIDs", mock.Anything, []string{"a", "b"}).Return(&Launched{RunID: "run-3", Total: 2}, nil)

		w := httptest.NewRecorder()
		newTestHandler(m).StartSelected(w, httptest.NewRequest("POST", "/enrichment/selected", strings.NewReader(`{"record_ids":["a","b"]}`)))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), `"runId":"run-3"`)
	})

	t.Run("Bad body", func(t *testing.T) {
		m := new(MockStarter)
		w := httptest.NewRecorder()
		newTestHandler(m).StartSelected(w, httptest.NewRequest("POST", "/enrichment/selected", strings.NewReader(`[`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Release(t *testing.T) {
	released := &progress.Progress{Status: progress.StatusFailed, RunID: "run-1", Processed: 3, Total: 9}

	tests := []struct {
		name       string
		body       string
		setup      func(m *MockStarter)
		wantStatus int
		wantCode   string
	}{
		{
			name: "Released with defaults",
			setup: func(m *MockStarter) {
				m.On("Release", mock.Anything, "operator", "").Return(released, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Released with source",
			body: `{"source":"ops","reason":"worker killed"}`,
			setup: func(m *MockStarter) {
				m.On("Release", mock.Anything, "ops", "worker killed").Return(released, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Nothing running",
			setup: func(m *MockStarter) {
				m.On("Release", mock.Anything, "operator", "").Return(nil, ErrNotRunning)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "NOT_RUNNING",
		},
		{
			name: "Store down",
			setup: func(m *MockStarter) {
				m.On("Release", mock.Anything, "operator", "").Return(nil, errors.New("load progress: blob store unavailable"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "Bad body",
			body:       `{`,
			setup:      func(m *MockStarter) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockStarter)
			tt.setup(m)

			w := httptest.NewRecorder()
			newTestHandler(m).Release(w, httptest.NewRequest("POST", "/enrichment/progress/reset", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"].(map[string]interface{})["code"])
			} else {
				assert.Equal(t, "FAILED", body["data"].(map[string]interface{})["status"])
			}
			assert.NotContains(t, w.Body.String(), "blob store unavailable")
			m.AssertExpectations(t)
		})
	}
}
