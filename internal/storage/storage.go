// Package storage persists valuation snapshots. Both tables are append-only:
// rows are inserted per computation and never updated or deleted.
package storage

import (
	"context"
	"errors"

	"github.com/kelsos/realms-tvl/internal/models"
)

// ErrNotFound is returned when no snapshot has been stored yet.
var ErrNotFound = errors.New("valuation not found")

// Store is the valuation history used by the aggregators and the read surface.
type Store interface {
	LatestOrganization(ctx context.Context, organizationID string) (models.OrganizationValuation, error)
	InsertOrganization(ctx context.Context, v models.OrganizationValuation) (models.OrganizationValuation, error)
	OrganizationHistory(ctx context.Context, organizationID string, limit int) ([]models.OrganizationValuation, error)

	LatestFleet(ctx context.Context) (models.FleetValuation, error)
	InsertFleet(ctx context.Context, v models.FleetValuation) (models.FleetValuation, error)
	FleetHistory(ctx context.Context, limit int) ([]models.FleetValuation, error)
}
