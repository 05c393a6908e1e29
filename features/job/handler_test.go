package job_test

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"salonindex/features/business"
	"salonindex/features/enrichment"
	"salonindex/features/job"
)

// MockRepo implements job.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *MockRepo) List(ctx context.Context) ([]job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}
func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}
func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) GetByIDs(ctx context.Context, ids []string) ([]business.Record, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]business.Record), args.Error(1)
}

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) EnrichSelected(ctx context.Context, recs []business.Record) (*enrichment.Launched, error) {
	args := m.Called(ctx, recs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrichment.Launched), args.Error(1)
}

func TestRecorder_RecordFailure(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.RecordID == "b1" && j.RunID == "run-1" && j.Error == "quota exceeded" && j.RecordName == "Luxe"
	})).Return(nil)

	err := job.NewRecorder(repo).RecordFailure(context.Background(), "run-1", business.Record{ID: "b1", Name: "Luxe"}, errors.New("quota exceeded"))
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandler_List(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything).Return(nil, nil)
	h := job.NewHandler(job.NewService(repo, nil, nil))

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/jobs/failed", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, w.Body.String())
}

func TestHandler_List_HidesDriverError(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything).Return(nil, errors.New(`pq: relation "failed_enrichments" does not exist`))
	h := job.NewHandler(job.NewService(repo, nil, nil))

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/jobs/failed", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to list failed enrichments")
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestHandler_Retry(t *testing.T) {
	failed := &job.Job{ID: "j1", RecordID: "b1"}
	rec := []business.Record{{ID: "b1"}}

	tests := []struct {
		name       string
		setup      func(repo *MockRepo, res *MockResolver, st *MockStarter)
		wantStatus int
	}{
		{
			name: "Accepted",
			setup: func(repo *MockRepo, res *MockResolver, st *MockStarter) {
				repo.On("Get", mock.Anything, "j1").Return(failed, nil)
				res.On("GetByIDs", mock.Anything, []string{"b1"}).Return(rec, nil)
				st.On("EnrichSelected", mock.Anything, rec).Return(&enrichment.Launched{RunID: "run-9", Total: 1}, nil)
				repo.On("Delete", mock.Anything, "j1").Return(nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "Unknown job",
			setup: func(repo *MockRepo, res *MockResolver, st *MockStarter) {
				repo.On("Get", mock.Anything, "j1").Return(nil, sql.ErrNoRows)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "Record deleted",
			setup: func(repo *MockRepo, res *MockResolver, st *MockStarter) {
				repo.On("Get", mock.Anything, "j1").Return(failed, nil)
				res.On("GetByIDs", mock.Anything, []string{"b1"}).Return([]business.Record{}, nil)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "Job running keeps row",
			setup: func(repo *MockRepo, res *MockResolver, st *MockStarter) {
				repo.On("Get", mock.Anything, "j1").Return(failed, nil)
				res.On("GetByIDs", mock.Anything, []string{"b1"}).Return(rec, nil)
				st.On("EnrichSelected", mock.Anything, rec).Return(nil, enrichment.ErrJobRunning)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "Resolver failure",
			setup: func(repo *MockRepo, res *MockResolver, st *MockStarter) {
				repo.On("Get", mock.Anything, "j1").Return(failed, nil)
				res.On("GetByIDs", mock.Anything, []string{"b1"}).Return(nil, errors.New("pq: connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, res, st := new(MockRepo), new(MockResolver), new(MockStarter)
			tt.setup(repo, res, st)

			mux := http.NewServeMux()
			mux.HandleFunc("POST /jobs/{id}/retry", job.NewHandler(job.NewService(repo, res, st)).Retry)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("POST", "/jobs/j1/retry", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "pq:")
			repo.AssertExpectations(t)
			if tt.wantStatus != http.StatusAccepted {
				repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			}
		})
	}
}
