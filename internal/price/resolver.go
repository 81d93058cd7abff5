// Package price resolves unit prices through a TTL cache in front of an oracle.
package price

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/executor"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/metrics"
	"github.com/kelsos/realms-tvl/internal/models"
)

// DefaultTTL is how long a fetched price is reused.
const DefaultTTL = 10 * time.Minute

// Quote is a resolved unit price. Status distinguishes a real price from a
// zero substituted because the oracle had none or failed.
type Quote struct {
	Price  decimal.Decimal
	Status models.PriceStatus
}

type fetched struct {
	price decimal.Decimal
	found bool
}

// Resolver returns unit prices, preferring fresh cache entries.
type Resolver struct {
	oracle Oracle
	exec   *executor.Executor
	cache  *Cache
	now    func() time.Time
}

// NewResolver creates a Resolver. The cache is owned by the caller so a
// single instance can be shared for the life of the process.
func NewResolver(oracle Oracle, exec *executor.Executor, cache *Cache) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	return &Resolver{
		oracle: oracle,
		exec:   exec,
		cache:  cache,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Price returns the unit price for assetID. It never fails: an unknown asset
// is priced at zero with status missing, and an oracle failure after retries
// is priced at zero with status failed.
func (r *Resolver) Price(ctx context.Context, assetID string) Quote {
	now := r.now()
	if e, ok := r.cache.get(assetID, now); ok {
		metrics.ObservePriceCache(true)
		logger.Debug("Using cached price for %s", assetID)
		return quoteFor(e.price, !e.missing)
	}
	metrics.ObservePriceCache(false)

	res, err := executor.Call(ctx, r.exec, "price", func(ctx context.Context) (fetched, error) {
		p, found, err := r.oracle.Price(ctx, assetID)
		return fetched{price: p, found: found}, err
	})
	if err != nil {
		logger.Warn("Error fetching price for %s, valuing at zero: %v", assetID, err)
		metrics.ObserveUnpriced(string(models.PriceFailed))
		return Quote{Price: decimal.Zero, Status: models.PriceFailed}
	}

	if !res.found {
		logger.Info("No price available for %s, valuing at zero", assetID)
		metrics.ObserveUnpriced(string(models.PriceMissing))
		res.price = decimal.Zero
	}

	r.cache.put(assetID, entry{price: res.price, missing: !res.found, fetchedAt: now})
	return quoteFor(res.price, res.found)
}

func quoteFor(p decimal.Decimal, found bool) Quote {
	if !found {
		return Quote{Price: decimal.Zero, Status: models.PriceMissing}
	}
	return Quote{Price: p, Status: models.PriceOK}
}
