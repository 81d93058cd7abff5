package storage

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/realms-tvl/internal/models"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(sqlx.NewDb(db, "sqlmock")), mock
}

func TestLatestOrganization(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM organization_valuation")).
		WithArgs("prog").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "value", "calculated_at"}).
			AddRow(int64(7), "prog", "1234.56", at))

	got, err := store.LatestOrganization(context.Background(), "prog")

	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "prog", got.OrganizationID)
	assert.True(t, got.TotalValueUSD.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, at, got.ComputedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestOrganization_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM organization_valuation")).
		WithArgs("prog").
		WillReturnError(sql.ErrNoRows)

	_, err := store.LatestOrganization(context.Background(), "prog")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestFleet_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fleet_valuation")).
		WillReturnError(errors.New("connection refused"))

	_, err := store.LatestFleet(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestInsertOrganization_RoundsToCents(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO organization_valuation")).
		WithArgs("prog", decimal.RequireFromString("10.13"), at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	got, err := store.InsertOrganization(context.Background(), models.OrganizationValuation{
		OrganizationID: "prog",
		TotalValueUSD:  decimal.RequireFromString("10.1251"),
		ComputedAt:     at,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "10.13", got.TotalValueUSD.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertFleet(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fleet_valuation")).
		WithArgs(decimal.RequireFromString("99.5"), at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	got, err := store.InsertFleet(context.Background(), models.FleetValuation{
		TotalValueUSD: decimal.RequireFromString("99.499"),
		ComputedAt:    at,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationHistory(t *testing.T) {
	store, mock := newMockStore(t)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	older := newer.AddDate(0, -1, 0)

	mock.ExpectQuery(regexp.QuoteMeta("FROM organization_valuation")).
		WithArgs("prog", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "value", "calculated_at"}).
			AddRow(int64(2), "prog", "20", newer).
			AddRow(int64(1), "prog", "10", older))

	history, err := store.OrganizationHistory(context.Background(), "prog", 10)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].ComputedAt.After(history[1].ComputedAt))
}

func TestFleetHistory_Empty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fleet_valuation")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "value", "calculated_at"}))

	history, err := store.FleetHistory(context.Background(), 5)

	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrationsFS, "migrations/000001_create_valuations.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(schema), "organization_valuation (organization_id, calculated_at DESC)")
}
