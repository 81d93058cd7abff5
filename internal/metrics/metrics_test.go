package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	failedBefore := testutil.ToFloat64(runs.WithLabelValues(ScopeFleet, "failed"))

	ObserveRun(ScopeFleet, time.Now(), decimal.RequireFromString("1234.5"), nil)
	ObserveRun(ScopeFleet, time.Now(), decimal.Zero, errors.New("boom"))

	assert.InDelta(t, 1234.5, testutil.ToFloat64(lastTotal.WithLabelValues(ScopeFleet)), 1e-9)
	assert.InDelta(t, failedBefore+1, testutil.ToFloat64(runs.WithLabelValues(ScopeFleet, "failed")), 1e-9)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveCall("price", "ok")
	ObservePriceCache(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "realms_tvl_upstream_calls_total")
	assert.Contains(t, rec.Body.String(), "realms_tvl_price_cache_lookups_total")
}
