package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/executor"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/metrics"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/storage"
)

// DefaultOrganizationInterval is the pause between two organizations.
const DefaultOrganizationInterval = 2 * time.Second

// FleetAggregator sums every configured organization into one fleet total.
type FleetAggregator struct {
	organizations *OrganizationAggregator
	store         storage.Store
	roots         []models.OrganizationRoot
	interval      time.Duration
	sleep         executor.SleepFunc
	now           func() time.Time
}

// FleetOptions tunes a FleetAggregator.
type FleetOptions struct {
	Interval time.Duration
	Sleep    executor.SleepFunc
	Now      func() time.Time
}

func NewFleetAggregator(organizations *OrganizationAggregator, store storage.Store, roots []models.OrganizationRoot, opts FleetOptions) *FleetAggregator {
	if opts.Sleep == nil {
		opts.Sleep = executor.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FleetAggregator{
		organizations: organizations,
		store:         store,
		roots:         roots,
		interval:      opts.Interval,
		sleep:         opts.Sleep,
		now:           opts.Now,
	}
}

// Valuate values every organization in configured order, one at a time, and
// stores their sum. If one organization fails nothing is stored for the fleet.
func (f *FleetAggregator) Valuate(ctx context.Context) (models.FleetValuation, error) {
	started := f.now()
	report := NewReport()

	v, err := f.valuate(ctx, report)
	if err != nil {
		metrics.ObserveRun(metrics.ScopeFleet, started, decimal.Zero, err)
		return models.FleetValuation{}, err
	}

	report.Log()
	metrics.ObserveRun(metrics.ScopeFleet, started, v.TotalValueUSD, nil)
	logger.Info("Total TVL for %d organizations: $%s", len(f.roots), v.TotalValueUSD.StringFixed(2))
	return v, nil
}

func (f *FleetAggregator) valuate(ctx context.Context, report *Report) (models.FleetValuation, error) {
	total, err := f.each(ctx, func(root models.OrganizationRoot) (decimal.Decimal, error) {
		v, err := f.organizations.valuate(ctx, root, report)
		return v.TotalValueUSD, err
	})
	if err != nil {
		return models.FleetValuation{}, err
	}

	stored, err := f.store.InsertFleet(ctx, models.FleetValuation{
		TotalValueUSD: total.Round(2),
		ComputedAt:    f.now(),
	})
	if err != nil {
		return models.FleetValuation{}, fmt.Errorf("failed to store fleet TVL: %w", err)
	}
	return stored, nil
}

// Refresh runs the organization aggregator over every root without storing a
// fleet total.
func (f *FleetAggregator) Refresh(ctx context.Context) error {
	report := NewReport()
	_, err := f.each(ctx, func(root models.OrganizationRoot) (decimal.Decimal, error) {
		v, err := f.organizations.valuate(ctx, root, report)
		return v.TotalValueUSD, err
	})
	if err != nil {
		return err
	}
	report.Log()
	return nil
}

// each calls fn for every root in order, pausing between calls, and sums the
// results. It stops at the first error.
func (f *FleetAggregator) each(ctx context.Context, fn func(root models.OrganizationRoot) (decimal.Decimal, error)) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, root := range f.roots {
		if i > 0 && f.interval > 0 {
			if err := f.sleep(ctx, f.interval); err != nil {
				return decimal.Zero, err
			}
		}

		value, err := fn(root)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(value)
	}
	return total, nil
}
