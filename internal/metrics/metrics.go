// Package metrics exposes Prometheus collectors for the valuation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Run scopes.
const (
	ScopeFleet        = "fleet"
	ScopeOrganization = "organization"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	externalCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "realms_tvl",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "External calls by call site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "realms_tvl",
			Subsystem: "upstream",
			Name:      "rate_limit_retries_total",
			Help:      "Retries scheduled after a rate-limit response.",
		},
		[]string{"site"},
	)

	priceCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "realms_tvl",
			Subsystem: "price",
			Name:      "cache_lookups_total",
			Help:      "Price cache lookups by result.",
		},
		[]string{"result"},
	)

	unpriced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "realms_tvl",
			Subsystem: "price",
			Name:      "unpriced_total",
			Help:      "Price lookups that fell back to zero.",
		},
		[]string{"status"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "realms_tvl",
			Subsystem: "valuation",
			Name:      "runs_total",
			Help:      "Valuation runs by scope and outcome.",
		},
		[]string{"scope", "outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "realms_tvl",
			Subsystem: "valuation",
			Name:      "run_duration_seconds",
			Help:      "Duration of computed valuation runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		},
		[]string{"scope"},
	)

	lastTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "realms_tvl",
			Subsystem: "valuation",
			Name:      "last_total_usd",
			Help:      "Most recently computed total value in USD.",
		},
		[]string{"scope"},
	)
)

func init() {
	Registry.MustRegister(externalCalls, retries, priceCache, unpriced, runs, runDuration, lastTotal)
}

// Handler returns an HTTP handler exposing the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveCall records the outcome of an external call.
func ObserveCall(site, outcome string) {
	externalCalls.WithLabelValues(site, outcome).Inc()
}

// ObserveRetry records a rate-limit retry.
func ObserveRetry(site string) {
	retries.WithLabelValues(site).Inc()
}

// ObservePriceCache records a cache hit or miss.
func ObservePriceCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	priceCache.WithLabelValues(result).Inc()
}

// ObserveUnpriced records an asset priced as zero.
func ObserveUnpriced(status string) {
	unpriced.WithLabelValues(status).Inc()
}

// ObserveRun records a finished valuation run. Totals are only exported for successful runs.
func ObserveRun(scope string, started time.Time, total decimal.Decimal, err error) {
	if err != nil {
		runs.WithLabelValues(scope, "failed").Inc()
		return
	}
	runs.WithLabelValues(scope, "computed").Inc()
	runDuration.WithLabelValues(scope).Observe(time.Since(started).Seconds())
	lastTotal.WithLabelValues(scope).Set(total.InexactFloat64())
}

// ObserveCached records a run answered from stored history.
func ObserveCached(scope string) {
	runs.WithLabelValues(scope, "cached").Inc()
}
