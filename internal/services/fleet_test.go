package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/storage"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func storedOrg(id, value string) models.OrganizationValuation {
	return models.OrganizationValuation{OrganizationID: id, TotalValueUSD: decimal.RequireFromString(value), ComputedAt: fixedNow}
}

func TestFleetValuate_SumsOrganizationsAndStoresOnce(t *testing.T) {
	store := new(MockStore)
	roots := []models.OrganizationRoot{{ProgramID: "a"}, {ProgramID: "b"}, {ProgramID: "c"}}
	sleeps := &recordedSleeps{}

	store.On("LatestOrganization", mock.Anything, "a").Return(storedOrg("a", "100.004"), nil)
	store.On("LatestOrganization", mock.Anything, "b").Return(storedOrg("b", "0.5"), nil)
	store.On("LatestOrganization", mock.Anything, "c").Return(storedOrg("c", "20.0"), nil)
	store.On("InsertFleet", mock.Anything, mock.MatchedBy(func(v models.FleetValuation) bool {
		return v.TotalValueUSD.Equal(decimal.RequireFromString("120.5")) && v.ComputedAt.Equal(fixedNow)
	})).Return(models.FleetValuation{ID: 1, TotalValueUSD: decimal.RequireFromString("120.5"), ComputedAt: fixedNow}, nil).Once()

	orgs := NewOrganizationAggregator(store, new(MockDiscoverer), new(MockValuator), OrganizationOptions{Now: clock})
	fleet := NewFleetAggregator(orgs, store, roots, FleetOptions{Interval: 2 * time.Second, Sleep: sleeps.sleep, Now: clock})

	got, err := fleet.Valuate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "120.50", got.TotalValueUSD.StringFixed(2))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeps.delays)
	store.AssertExpectations(t)
}

func TestFleetValuate_OrganizationFailureStoresNoFleetTotal(t *testing.T) {
	store := new(MockStore)
	discoverer := new(MockDiscoverer)
	roots := []models.OrganizationRoot{{ProgramID: "a"}, {ProgramID: "b"}, {ProgramID: "c"}}

	store.On("LatestOrganization", mock.Anything, "a").Return(storedOrg("a", "1"), nil)
	store.On("LatestOrganization", mock.Anything, "b").Return(models.OrganizationValuation{}, errors.New("connection reset"))

	orgs := NewOrganizationAggregator(store, discoverer, new(MockValuator), OrganizationOptions{Now: clock})
	fleet := NewFleetAggregator(orgs, store, roots, FleetOptions{Sleep: (&recordedSleeps{}).sleep, Now: clock})

	_, err := fleet.Valuate(context.Background())

	require.Error(t, err)
	store.AssertNotCalled(t, "LatestOrganization", mock.Anything, "c")
	store.AssertNotCalled(t, "InsertFleet", mock.Anything, mock.Anything)
}

func TestFleetValuate_PacingHonoursCancellation(t *testing.T) {
	store := new(MockStore)
	roots := []models.OrganizationRoot{{ProgramID: "a"}, {ProgramID: "b"}}
	ctx, cancel := context.WithCancel(context.Background())

	store.On("LatestOrganization", mock.Anything, "a").Return(storedOrg("a", "1"), nil).Run(func(mock.Arguments) { cancel() })

	orgs := NewOrganizationAggregator(store, new(MockDiscoverer), new(MockValuator), OrganizationOptions{Now: clock})
	fleet := NewFleetAggregator(orgs, store, roots, FleetOptions{Interval: time.Hour, Now: clock})

	_, err := fleet.Valuate(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	store.AssertNotCalled(t, "InsertFleet", mock.Anything, mock.Anything)
}

func TestFleetRefresh_StoresNoFleetTotal(t *testing.T) {
	store := new(MockStore)
	roots := []models.OrganizationRoot{{ProgramID: "a"}, {ProgramID: "b"}}

	store.On("LatestOrganization", mock.Anything, "a").Return(storedOrg("a", "1"), nil)
	store.On("LatestOrganization", mock.Anything, "b").Return(storedOrg("b", "2"), nil)

	orgs := NewOrganizationAggregator(store, new(MockDiscoverer), new(MockValuator), OrganizationOptions{Now: clock})
	fleet := NewFleetAggregator(orgs, store, roots, FleetOptions{Sleep: (&recordedSleeps{}).sleep, Now: clock})

	require.NoError(t, fleet.Refresh(context.Background()))
	store.AssertNotCalled(t, "InsertFleet", mock.Anything, mock.Anything)
}

func TestFleetValuate_LogsTreasuriesAfterEachOrganization(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(&bytes.Buffer{}) })

	store := new(MockStore)
	discoverer := new(MockDiscoverer)
	valuator := new(MockValuator)
	roots := []models.OrganizationRoot{{ProgramID: "a"}, {ProgramID: "b"}}

	for _, root := range roots {
		addr := models.TreasuryAddress("t" + root.ProgramID)
		store.On("LatestOrganization", mock.Anything, root.ProgramID).Return(models.OrganizationValuation{}, storage.ErrNotFound)
		discoverer.On("Discover", mock.Anything, root).Return([]models.TreasuryAddress{addr}, nil)
		valuator.On("Valuate", mock.Anything, addr).Return(treasuryWorth(addr, "2"), nil)
		store.On("InsertOrganization", mock.Anything, mock.MatchedBy(func(v models.OrganizationValuation) bool {
			return v.OrganizationID == root.ProgramID
		})).Return(storedOrg(root.ProgramID, "2"), nil)
	}
	store.On("InsertFleet", mock.Anything, mock.Anything).Return(models.FleetValuation{TotalValueUSD: decimal.NewFromInt(4), ComputedAt: fixedNow}, nil)

	orgs := NewOrganizationAggregator(store, discoverer, valuator, OrganizationOptions{Now: clock})
	_, err := NewFleetAggregator(orgs, store, roots, FleetOptions{Now: clock}).Valuate(context.Background())
	require.NoError(t, err)

	out := buf.String()
	first := strings.Index(out, "Organization a: 1 treasuries: ta")
	second := strings.Index(out, "Organization b: 1 treasuries: tb")
	totals := strings.Index(out, "Token details for 1 assets")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	require.NotEqual(t, -1, totals)
	assert.Less(t, first, second)
	assert.Less(t, second, totals)
}
