package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kelsos/realms-tvl/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LatestOrganization(ctx context.Context, organizationID string) (models.OrganizationValuation, error) {
	args := m.Called(ctx, organizationID)
	return args.Get(0).(models.OrganizationValuation), args.Error(1)
}

func (m *MockStore) InsertOrganization(ctx context.Context, v models.OrganizationValuation) (models.OrganizationValuation, error) {
	args := m.Called(ctx, v)
	return args.Get(0).(models.OrganizationValuation), args.Error(1)
}

func (m *MockStore) OrganizationHistory(ctx context.Context, organizationID string, limit int) ([]models.OrganizationValuation, error) {
	args := m.Called(ctx, organizationID, limit)
	return args.Get(0).([]models.OrganizationValuation), args.Error(1)
}

func (m *MockStore) LatestFleet(ctx context.Context) (models.FleetValuation, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.FleetValuation), args.Error(1)
}

func (m *MockStore) InsertFleet(ctx context.Context, v models.FleetValuation) (models.FleetValuation, error) {
	args := m.Called(ctx, v)
	return args.Get(0).(models.FleetValuation), args.Error(1)
}

func (m *MockStore) FleetHistory(ctx context.Context, limit int) ([]models.FleetValuation, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.FleetValuation), args.Error(1)
}

type MockDiscoverer struct {
	mock.Mock
}

func (m *MockDiscoverer) Discover(ctx context.Context, root models.OrganizationRoot) ([]models.TreasuryAddress, error) {
	args := m.Called(ctx, root)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TreasuryAddress), args.Error(1)
}

type MockValuator struct {
	mock.Mock
}

func (m *MockValuator) Valuate(ctx context.Context, address models.TreasuryAddress) (models.TreasuryValuation, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(models.TreasuryValuation), args.Error(1)
}
