// Package metrics exposes prometheus instrumentation for the dashboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	fetches          *prometheus.CounterVec
	memoLookups      *prometheus.CounterVec
	trackedCities    prometheus.Gauge
	prunedEntries    prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		upstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "city_weather",
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the weather provider, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "city_weather",
			Name:      "fetches_total",
			Help:      "Per-city fetches settled in the cache, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		memoLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "city_weather",
			Name:      "geocode_memo_lookups_total",
			Help:      "Geocoding memo lookups, by result.",
		}, []string{"result"}),
		trackedCities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "city_weather",
			Name:      "tracked_cities",
			Help:      "Number of cities in the registry.",
		}),
		prunedEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "city_weather",
			Name:      "pruned_cache_entries_total",
			Help:      "Orphaned cache entries removed by the janitor.",
		}),
	}
}

// UpstreamRequest counts one provider call.
func (m *Metrics) UpstreamRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(endpoint, outcome(err)).Inc()
}

// Fetch counts one settled (or discarded) cache fetch.
func (m *Metrics) Fetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(kind, outcome).Inc()
}

// MemoLookup counts a geocoding memo hit or miss.
func (m *Metrics) MemoLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.memoLookups.WithLabelValues(result).Inc()
}

// SetTrackedCities sets the registry size gauge.
func (m *Metrics) SetTrackedCities(n int) {
	if m == nil {
		return
	}
	m.trackedCities.Set(float64(n))
}

// Pruned adds n to the janitor counter.
func (m *Metrics) Pruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedEntries.Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
