package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kelsos/realms-tvl/internal/async"
	"github.com/kelsos/realms-tvl/internal/blockchain"
	"github.com/kelsos/realms-tvl/internal/client"
	"github.com/kelsos/realms-tvl/internal/config"
	"github.com/kelsos/realms-tvl/internal/executor"
	"github.com/kelsos/realms-tvl/internal/holdings"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/price"
	"github.com/kelsos/realms-tvl/internal/runlock"
	"github.com/kelsos/realms-tvl/internal/services"
	"github.com/kelsos/realms-tvl/internal/storage"
	"github.com/kelsos/realms-tvl/internal/treasury"
)

const (
	connectTimeout = 2 * time.Minute
	runLockKey     = "realms-tvl:run-lock"
	runLockTTL     = 6 * time.Hour
)

// app holds the wired pipeline and the resources it owns.
type app struct {
	store   *storage.Postgres
	roots   []models.OrganizationRoot
	service *services.ValuationService
	redis   *runlock.Redis
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlx.DB, *storage.Postgres, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("database url is required (TVL_DATABASE_URL or --database-url)")
	}
	db, err := storage.Connect(ctx, cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewPostgres(db), nil
}

// newApp wires every component. observer may be nil.
func newApp(ctx context.Context, cfg *config.Config, observer services.Observer) (*app, error) {
	roots, err := models.LoadOrganizations(cfg.OrganizationsFile)
	if err != nil {
		return nil, err
	}

	db, store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts := executor.DefaultOptions()
	opts.Interval = cfg.CallInterval
	opts.MaxRetries = cfg.MaxRetries
	opts.InitialBackoff = cfg.RetryDelay
	opts.Jitter = cfg.RetryJitter
	exec := executor.New(opts)

	chain := blockchain.NewClient(cfg.RPCURL)
	oracle := price.NewJupiterOracle(client.NewAPIClient(cfg.PriceURL, &http.Client{Timeout: 30 * time.Second}))
	resolver := price.NewResolver(oracle, exec, price.NewCache(cfg.PriceTTL))

	discoverer := treasury.NewDiscoverer(chain, exec)
	discoverer.OnRealm(func(root models.OrganizationRoot, realm models.Realm, treasuries int) {
		logger.Debug("%s: realm %s has %d treasuries", root.Label(), realm.Address, treasuries)
	})
	valuator := holdings.NewValuator(chain, resolver, exec)

	organizations := services.NewOrganizationAggregator(store, discoverer, valuator, services.OrganizationOptions{
		BatchSize: cfg.BatchSize,
		MaxAge:    cfg.OrgMaxAge,
		Observer:  observer,
	})
	fleet := services.NewFleetAggregator(organizations, store, roots, services.FleetOptions{
		Interval: cfg.OrgInterval,
	})

	a := &app{store: store, roots: roots}

	var lock runlock.Lock = runlock.NewLocal()
	if cfg.RedisURL != "" {
		a.redis, err = runlock.NewRedisFromURL(ctx, cfg.RedisURL, runLockKey, runLockTTL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		lock = runlock.Chain{lock, a.redis}
		logger.Info("Using redis run lock %s", runLockKey)
	}

	a.service = services.NewValuationService(store, organizations, fleet, roots, async.NewRunManager(async.DefaultHistory), lock)
	logger.Info("Tracking %d organizations via %s", len(roots), cfg.RPCURL)
	return a, nil
}

func (a *app) Close() {
	a.service.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close redis client: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close database: %v", err)
	}
}
