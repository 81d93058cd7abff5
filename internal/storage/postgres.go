package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
)

// Stored totals keep cents precision.
const valuePlaces = 2

// Postgres implements Store on top of a PostgreSQL database.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Connect opens the database and pings it, retrying with exponential backoff
// until maxElapsed has passed. A zero maxElapsed retries until ctx is done.
func Connect(ctx context.Context, dsn string, maxElapsed time.Duration) (*sqlx.DB, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = maxElapsed

	var db *sqlx.DB
	err := backoff.RetryNotify(func() error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		db = conn
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		logger.Warn("Database not reachable, retrying in %s: %v", next, err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Connected to database")
	return db, nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping checks that the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) LatestOrganization(ctx context.Context, organizationID string) (models.OrganizationValuation, error) {
	query := `
		SELECT id, organization_id, value, calculated_at
		FROM organization_valuation
		WHERE organization_id = $1
		ORDER BY calculated_at DESC
		LIMIT 1
	`

	var v models.OrganizationValuation
	if err := p.db.GetContext(ctx, &v, query, organizationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OrganizationValuation{}, ErrNotFound
		}
		return models.OrganizationValuation{}, fmt.Errorf("failed to get latest valuation of %s: %w", organizationID, err)
	}
	return v, nil
}

func (p *Postgres) InsertOrganization(ctx context.Context, v models.OrganizationValuation) (models.OrganizationValuation, error) {
	query := `
		INSERT INTO organization_valuation (organization_id, value, calculated_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	v.TotalValueUSD = v.TotalValueUSD.Round(valuePlaces)
	v.ComputedAt = v.ComputedAt.UTC()
	if err := p.db.QueryRowxContext(ctx, query, v.OrganizationID, v.TotalValueUSD, v.ComputedAt).Scan(&v.ID); err != nil {
		return models.OrganizationValuation{}, fmt.Errorf("failed to insert valuation of %s: %w", v.OrganizationID, err)
	}
	return v, nil
}

func (p *Postgres) OrganizationHistory(ctx context.Context, organizationID string, limit int) ([]models.OrganizationValuation, error) {
	query := `
		SELECT id, organization_id, value, calculated_at
		FROM organization_valuation
		WHERE organization_id = $1
		ORDER BY calculated_at DESC
		LIMIT $2
	`

	history := []models.OrganizationValuation{}
	if err := p.db.SelectContext(ctx, &history, query, organizationID, limit); err != nil {
		return nil, fmt.Errorf("failed to list valuations of %s: %w", organizationID, err)
	}
	return history, nil
}

func (p *Postgres) LatestFleet(ctx context.Context) (models.FleetValuation, error) {
	query := `
		SELECT id, value, calculated_at
		FROM fleet_valuation
		ORDER BY calculated_at DESC
		LIMIT 1
	`

	var v models.FleetValuation
	if err := p.db.GetContext(ctx, &v, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FleetValuation{}, ErrNotFound
		}
		return models.FleetValuation{}, fmt.Errorf("failed to get latest fleet valuation: %w", err)
	}
	return v, nil
}

func (p *Postgres) InsertFleet(ctx context.Context, v models.FleetValuation) (models.FleetValuation, error) {
	query := `
		INSERT INTO fleet_valuation (value, calculated_at)
		VALUES ($1, $2)
		RETURNING id
	`

	v.TotalValueUSD = v.TotalValueUSD.Round(valuePlaces)
	v.ComputedAt = v.ComputedAt.UTC()
	if err := p.db.QueryRowxContext(ctx, query, v.TotalValueUSD, v.ComputedAt).Scan(&v.ID); err != nil {
		return models.FleetValuation{}, fmt.Errorf("failed to insert fleet valuation: %w", err)
	}
	return v, nil
}

func (p *Postgres) FleetHistory(ctx context.Context, limit int) ([]models.FleetValuation, error) {
	query := `
		SELECT id, value, calculated_at
		FROM fleet_valuation
		ORDER BY calculated_at DESC
		LIMIT $1
	`

	history := []models.FleetValuation{}
	if err := p.db.SelectContext(ctx, &history, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list fleet valuations: %w", err)
	}
	return history, nil
}
