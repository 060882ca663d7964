// Package metrics provides Prometheus metrics for the scheduler, fetcher,
// rate-limit governor and batch orchestrator, adapted from the teacher's
// infrastructure/metrics.Metrics shape (counter/histogram/gauge vecs
// registered once, recorded through small helper methods) and generalized
// away from HTTP/blockchain-specific instruments onto this domain's.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this service exposes at /metrics.
type Metrics struct {
	CycleDuration       *prometheus.HistogramVec
	CyclesTotal         *prometheus.CounterVec
	BatchSuccessRate    prometheus.Gauge
	BatchesTotal        *prometheus.CounterVec
	RepoResultsTotal    *prometheus.CounterVec
	RateLimitTokens     *prometheus.GaugeVec
	CreditsUsedHourly   prometheus.Gauge
	CreditsUsedBatch    *prometheus.GaugeVec
	DiscoveredReposTotal prometheus.Counter
	UpstreamCallDuration *prometheus.HistogramVec
}

// New builds and registers every collector against registerer (pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests).
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scout_cycle_duration_seconds",
			Help:    "Duration of a scheduler cycle tick",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_cycles_total",
			Help: "Total number of scheduler cycle ticks",
		}, []string{"kind", "status"}),
		BatchSuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scout_batch_success_rate",
			Help: "Success rate of the most recently observed batch",
		}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_batches_total",
			Help: "Total number of batches by terminal status",
		}, []string{"status"}),
		RepoResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_repo_results_total",
			Help: "Total number of per-repo analysis results by status",
		}, []string{"status"}),
		RateLimitTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scout_rate_limit_tokens",
			Help: "Current token count per rate-limit bucket",
		}, []string{"endpoint"}),
		CreditsUsedHourly: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scout_credits_used_hourly",
			Help: "Credits consumed in the current hourly window",
		}),
		CreditsUsedBatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scout_credits_used_batch",
			Help: "Credits consumed by a batch",
		}, []string{"batch_id"}),
		DiscoveredReposTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_discovered_repos_total",
			Help: "Total number of repositories discovered across all cycles",
		}),
		UpstreamCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scout_upstream_call_duration_seconds",
			Help:    "Duration of an outbound code-host or LLM call",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"adapter", "operation"}),
	}
	if registerer != nil {
		registerer.MustRegister(
			m.CycleDuration, m.CyclesTotal, m.BatchSuccessRate, m.BatchesTotal,
			m.RepoResultsTotal, m.RateLimitTokens, m.CreditsUsedHourly, m.CreditsUsedBatch,
			m.DiscoveredReposTotal, m.UpstreamCallDuration,
		)
	}
	return m
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes the process-wide metrics instance against the default
// registry; safe to call once at startup.
func Init() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(prometheus.DefaultRegisterer)
	}
	return global
}

// Global returns the process-wide metrics instance, constructing an
// unregistered fallback if Init was never called (e.g. in tests).
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(nil)
	}
	return global
}
