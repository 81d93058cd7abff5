package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/runlock"
	"github.com/kelsos/realms-tvl/internal/storage"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Organizations() []models.OrganizationRoot {
	return m.Called().Get(0).([]models.OrganizationRoot)
}

func (m *MockService) LatestFleet(ctx context.Context) (models.FleetValuation, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.FleetValuation), args.Error(1)
}

func (m *MockService) FleetHistory(ctx context.Context, limit int) ([]models.FleetValuation, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.FleetValuation), args.Error(1)
}

func (m *MockService) LatestOrganization(ctx context.Context, programID string) (models.OrganizationValuation, error) {
	args := m.Called(ctx, programID)
	return args.Get(0).(models.OrganizationValuation), args.Error(1)
}

func (m *MockService) OrganizationHistory(ctx context.Context, programID string, limit int) ([]models.OrganizationValuation, error) {
	args := m.Called(ctx, programID, limit)
	return args.Get(0).([]models.OrganizationValuation), args.Error(1)
}

func (m *MockService) TriggerFleet(ctx context.Context) (models.RunID, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.RunID), args.Error(1)
}

func (m *MockService) TriggerOrganization(ctx context.Context, programID string) (models.OrganizationValuation, error) {
	args := m.Called(ctx, programID)
	return args.Get(0).(models.OrganizationValuation), args.Error(1)
}

func (m *MockService) Run(id models.RunID) models.Run {
	return m.Called(id).Get(0).(models.Run)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

var updatedAt = time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

func serve(t *testing.T, svc *MockService, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(svc, nil).ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestLatestFleet(t *testing.T) {
	svc := new(MockService)
	svc.On("LatestFleet", mock.Anything).Return(models.FleetValuation{ID: 1, TotalValueUSD: decimal.RequireFromString("1234.56"), ComputedAt: updatedAt}, nil)

	rec, body := serve(t, svc, http.MethodGet, "/tvl/latest")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1234.56", body["totalValueUsd"])
	assert.Equal(t, "2024-08-01T00:00:00Z", body["lastUpdated"])
}

func TestLatestFleet_Unavailable(t *testing.T) {
	svc := new(MockService)
	svc.On("LatestFleet", mock.Anything).Return(models.FleetValuation{}, storage.ErrNotFound)

	rec, body := serve(t, svc, http.MethodGet, "/tvl/latest")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TVL data not available", body["error"])
}

func TestLatestFleet_StoreFailureIsGeneric(t *testing.T) {
	svc := new(MockService)
	svc.On("LatestFleet", mock.Anything).Return(models.FleetValuation{}, errors.New("pq: password authentication failed"))

	rec, body := serve(t, svc, http.MethodGet, "/tvl/latest")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error fetching TVL", body["error"])
}

func TestTriggerFleet(t *testing.T) {
	svc := new(MockService)
	svc.On("TriggerFleet", mock.Anything).Return(models.RunID("run-1"), nil)

	rec, body := serve(t, svc, http.MethodPost, "/tvl/update")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "TVL update initiated", body["message"])
	assert.Equal(t, "run-1", body["runId"])
}

func TestTriggerFleet_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"in progress", runlock.ErrRunInProgress, http.StatusConflict, "TVL update already in progress"},
		{"failure", errors.New("redis: connection refused"), http.StatusInternalServerError, "Error initiating TVL update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("TriggerFleet", mock.Anything).Return(models.RunID(""), tt.err)

			rec, body := serve(t, svc, http.MethodPost, "/tvl/update")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestRun(t *testing.T) {
	svc := new(MockService)
	svc.On("Run", models.RunID("run-1")).Return(models.Run{ID: "run-1", Kind: "fleet", Status: models.RunStatusPending, StartedAt: updatedAt})
	svc.On("Run", models.RunID("nope")).Return(models.Run{ID: "nope", Status: models.RunStatusNotFound})

	rec, body := serve(t, svc, http.MethodGet, "/tvl/runs/run-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body["status"])

	rec, _ = serve(t, svc, http.MethodGet, "/tvl/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrganizations(t *testing.T) {
	svc := new(MockService)
	svc.On("Organizations").Return([]models.OrganizationRoot{{ProgramID: "prog", Name: "Alpha"}})

	rec, _ := serve(t, svc, http.MethodGet, "/tvl/organizations")

	require.Equal(t, http.StatusOK, rec.Code)
	var roots []models.OrganizationRoot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roots))
	assert.Equal(t, []models.OrganizationRoot{{ProgramID: "prog", Name: "Alpha"}}, roots)
}

func TestLatestOrganization(t *testing.T) {
	svc := new(MockService)
	svc.On("LatestOrganization", mock.Anything, "prog").
		Return(models.OrganizationValuation{OrganizationID: "prog", TotalValueUSD: decimal.RequireFromString("10.5"), ComputedAt: updatedAt}, nil)
	svc.On("LatestOrganization", mock.Anything, "empty").
		Return(models.OrganizationValuation{}, storage.ErrNotFound)

	rec, body := serve(t, svc, http.MethodGet, "/tvl/organizations/prog/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "prog", body["organizationId"])
	assert.Equal(t, "10.5", body["totalValueUsd"])

	rec, body = serve(t, svc, http.MethodGet, "/tvl/organizations/empty/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TVL data not available", body["error"])
}

func TestTriggerOrganization(t *testing.T) {
	svc := new(MockService)
	svc.On("TriggerOrganization", mock.Anything, "prog").
		Return(models.OrganizationValuation{OrganizationID: "prog", TotalValueUSD: decimal.RequireFromString("7"), ComputedAt: updatedAt}, nil)
	svc.On("TriggerOrganization", mock.Anything, "bad").
		Return(models.OrganizationValuation{}, errors.New("invalid program id"))

	rec, body := serve(t, svc, http.MethodPost, "/tvl/organizations/prog/update")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", body["totalValueUsd"])

	rec, body = serve(t, svc, http.MethodPost, "/tvl/organizations/bad/update")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error updating TVL", body["error"])
}

func TestOrganizationHistory_Limit(t *testing.T) {
	svc := new(MockService)
	svc.On("OrganizationHistory", mock.Anything, "prog", defaultHistoryLimit).Return([]models.OrganizationValuation{}, nil)
	svc.On("OrganizationHistory", mock.Anything, "prog", maxHistoryLimit).Return([]models.OrganizationValuation{
		{OrganizationID: "prog", TotalValueUSD: decimal.NewFromInt(1), ComputedAt: updatedAt},
	}, nil)

	rec, _ := serve(t, svc, http.MethodGet, "/tvl/organizations/prog/history")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec, _ = serve(t, svc, http.MethodGet, "/tvl/organizations/prog/history?limit=100000")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(t, svc, http.MethodGet, "/tvl/organizations/prog/history?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit must be a positive integer", body["error"])
}

func TestFleetHistory(t *testing.T) {
	svc := new(MockService)
	svc.On("FleetHistory", mock.Anything, 5).Return([]models.FleetValuation{
		{TotalValueUSD: decimal.NewFromInt(2), ComputedAt: updatedAt},
	}, nil)

	rec, _ := serve(t, svc, http.MethodGet, "/tvl/history?limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"totalValueUsd":"2","lastUpdated":"2024-08-01T00:00:00Z"}]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(new(MockService), stubPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewRouter(new(MockService), stubPinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := serve(t, new(MockService), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
