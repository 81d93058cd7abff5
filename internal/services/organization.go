package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/metrics"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/storage"
)

// DefaultBatchSize bounds how many treasuries are valued per batch.
const DefaultBatchSize = 25

// TreasuryDiscoverer lists the treasuries of an organization.
type TreasuryDiscoverer interface {
	Discover(ctx context.Context, root models.OrganizationRoot) ([]models.TreasuryAddress, error)
}

// TreasuryValuator values a single treasury.
type TreasuryValuator interface {
	Valuate(ctx context.Context, address models.TreasuryAddress) (models.TreasuryValuation, error)
}

// OrganizationAggregator computes and persists the total of one organization.
type OrganizationAggregator struct {
	store      storage.Store
	discoverer TreasuryDiscoverer
	valuator   TreasuryValuator
	batchSize  int
	maxAge     time.Duration
	observer   Observer
	now        func() time.Time
}

// OrganizationOptions tunes an OrganizationAggregator. A zero MaxAge means a
// stored total is reused forever.
type OrganizationOptions struct {
	BatchSize int
	MaxAge    time.Duration
	Observer  Observer
	Now       func() time.Time
}

func NewOrganizationAggregator(store storage.Store, discoverer TreasuryDiscoverer, valuator TreasuryValuator, opts OrganizationOptions) *OrganizationAggregator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &OrganizationAggregator{
		store:      store,
		discoverer: discoverer,
		valuator:   valuator,
		batchSize:  opts.BatchSize,
		maxAge:     opts.MaxAge,
		observer:   opts.Observer,
		now:        opts.Now,
	}
}

// Valuate returns the stored total of root if one exists, otherwise computes
// it from chain and stores it. Any failure aborts without storing anything.
func (a *OrganizationAggregator) Valuate(ctx context.Context, root models.OrganizationRoot) (models.OrganizationValuation, error) {
	report := NewReport()
	v, err := a.valuate(ctx, root, report)
	if err == nil {
		report.Log()
	}
	return v, err
}

func (a *OrganizationAggregator) valuate(ctx context.Context, root models.OrganizationRoot, report *Report) (models.OrganizationValuation, error) {
	cached, ok, err := a.reusable(ctx, root)
	if err != nil {
		return models.OrganizationValuation{}, err
	}
	if ok {
		logger.Info("Returning stored TVL for %s: $%s", root.Label(), cached.TotalValueUSD.StringFixed(2))
		metrics.ObserveCached(metrics.ScopeOrganization)
		a.observer.OrganizationCached(root, cached)
		return cached, nil
	}

	started := a.now()
	a.observer.OrganizationStarted(root)
	logger.Info("Calculating TVL for %s", root.Label())

	total, err := a.compute(ctx, root, report)
	if err == nil {
		report.LogOrganization(root.ProgramID)
		var stored models.OrganizationValuation
		stored, err = a.store.InsertOrganization(ctx, models.OrganizationValuation{
			OrganizationID: root.ProgramID,
			TotalValueUSD:  total,
			ComputedAt:     a.now(),
		})
		if err == nil {
			metrics.ObserveRun(metrics.ScopeOrganization, started, stored.TotalValueUSD, nil)
			a.observer.OrganizationDone(root, stored.TotalValueUSD)
			logger.Info("TVL for %s: $%s", root.Label(), stored.TotalValueUSD.StringFixed(2))
			return stored, nil
		}
	}

	metrics.ObserveRun(metrics.ScopeOrganization, started, decimal.Zero, err)
	a.observer.OrganizationFailed(root, err)
	return models.OrganizationValuation{}, fmt.Errorf("failed to value organization %s: %w", root.ProgramID, err)
}

// reusable reports whether a stored total may be returned instead of computing.
func (a *OrganizationAggregator) reusable(ctx context.Context, root models.OrganizationRoot) (models.OrganizationValuation, bool, error) {
	latest, err := a.store.LatestOrganization(ctx, root.ProgramID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.OrganizationValuation{}, false, nil
	}
	if err != nil {
		return models.OrganizationValuation{}, false, fmt.Errorf("failed to read stored TVL of %s: %w", root.ProgramID, err)
	}
	if a.maxAge > 0 && a.now().Sub(latest.ComputedAt) >= a.maxAge {
		logger.Debug("Stored TVL for %s from %s is older than %s", root.Label(), latest.ComputedAt.Format(time.RFC3339), a.maxAge)
		return models.OrganizationValuation{}, false, nil
	}
	return latest, true, nil
}

func (a *OrganizationAggregator) compute(ctx context.Context, root models.OrganizationRoot, report *Report) (decimal.Decimal, error) {
	treasuries, err := a.discoverer.Discover(ctx, root)
	if err != nil {
		return decimal.Zero, err
	}
	a.observer.TreasuriesDiscovered(root, len(treasuries))

	total := decimal.Zero
	done := 0
	for start := 0; start < len(treasuries); start += a.batchSize {
		end := min(start+a.batchSize, len(treasuries))

		batchTotal := decimal.Zero
		for _, address := range treasuries[start:end] {
			v, err := a.valuator.Valuate(ctx, address)
			if err != nil {
				return decimal.Zero, err
			}
			batchTotal = batchTotal.Add(v.Total)
			done++
			report.AddTreasury(root.ProgramID, v)
			a.observer.TreasuryValued(root, done, len(treasuries), v)
		}

		total = total.Add(batchTotal)
		logger.Debug("%s: batch %d-%d of %d worth $%s", root.Label(), start+1, end, len(treasuries), batchTotal.StringFixed(2))
	}

	return total, nil
}
