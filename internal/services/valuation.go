package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/async"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/runlock"
	"github.com/kelsos/realms-tvl/internal/storage"
)

// RunKindFleet labels background fleet runs.
const RunKindFleet = "fleet"

// ValuationService is the entry point used by the HTTP API, the CLI and the
// scheduler. Every computation holds the run lock.
type ValuationService struct {
	store         storage.Store
	organizations *OrganizationAggregator
	fleet         *FleetAggregator
	roots         []models.OrganizationRoot
	runs          *async.RunManager
	lock          runlock.Lock
}

func NewValuationService(
	store storage.Store,
	organizations *OrganizationAggregator,
	fleet *FleetAggregator,
	roots []models.OrganizationRoot,
	runs *async.RunManager,
	lock runlock.Lock,
) *ValuationService {
	return &ValuationService{
		store:         store,
		organizations: organizations,
		fleet:         fleet,
		roots:         roots,
		runs:          runs,
		lock:          lock,
	}
}

// Organizations returns the configured organization roots.
func (s *ValuationService) Organizations() []models.OrganizationRoot {
	return append([]models.OrganizationRoot(nil), s.roots...)
}

// Organization returns the configured root for programID, or a bare root
// when programID is not in the list.
func (s *ValuationService) Organization(programID string) models.OrganizationRoot {
	for _, root := range s.roots {
		if root.ProgramID == programID {
			return root
		}
	}
	return models.OrganizationRoot{ProgramID: programID}
}

// LatestFleet returns the most recent fleet total, or storage.ErrNotFound.
func (s *ValuationService) LatestFleet(ctx context.Context) (models.FleetValuation, error) {
	return s.store.LatestFleet(ctx)
}

// LatestOrganization returns the most recent total of an organization, or
// storage.ErrNotFound.
func (s *ValuationService) LatestOrganization(ctx context.Context, programID string) (models.OrganizationValuation, error) {
	return s.store.LatestOrganization(ctx, programID)
}

func (s *ValuationService) FleetHistory(ctx context.Context, limit int) ([]models.FleetValuation, error) {
	return s.store.FleetHistory(ctx, limit)
}

func (s *ValuationService) OrganizationHistory(ctx context.Context, programID string, limit int) ([]models.OrganizationValuation, error) {
	return s.store.OrganizationHistory(ctx, programID, limit)
}

// TriggerFleet starts a fleet valuation in the background and returns its run
// id. It fails with runlock.ErrRunInProgress if a run is already going.
func (s *ValuationService) TriggerFleet(ctx context.Context) (models.RunID, error) {
	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return "", err
	}

	id := s.runs.Start(RunKindFleet, func(ctx context.Context) (decimal.Decimal, error) {
		defer release()
		v, err := s.fleet.Valuate(ctx)
		return v.TotalValueUSD, err
	})
	logger.Info("Fleet TVL update initiated as run %s", id)
	return id, nil
}

// TriggerOrganization values one organization and waits for the result.
func (s *ValuationService) TriggerOrganization(ctx context.Context, programID string) (models.OrganizationValuation, error) {
	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return models.OrganizationValuation{}, err
	}
	defer release()

	return s.organizations.Valuate(ctx, s.Organization(programID))
}

// RunFleet values the fleet in the foreground.
func (s *ValuationService) RunFleet(ctx context.Context) (models.FleetValuation, error) {
	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return models.FleetValuation{}, err
	}
	defer release()

	return s.fleet.Valuate(ctx)
}

// RefreshOrganizations values every organization without a fleet total.
func (s *ValuationService) RefreshOrganizations(ctx context.Context) error {
	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.fleet.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh organizations: %w", err)
	}
	return nil
}

// Run returns the state of a background run.
func (s *ValuationService) Run(id models.RunID) models.Run {
	return s.runs.Get(id)
}

// Busy reports whether err means another run holds the lock.
func Busy(err error) bool {
	return errors.Is(err, runlock.ErrRunInProgress)
}

// Close stops background runs.
func (s *ValuationService) Close() {
	s.runs.Stop()
}
