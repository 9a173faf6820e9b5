package opsapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the ops surface exposes,
// grounded on the teacher's infrastructure/metrics.Metrics
// (one struct of collectors, registered into a shared registry).
type Metrics struct {
	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	RunsInFlight  prometheus.Gauge

	// TokensTotal and CostTotal are the per-stage analytics ledger
	// (spec.md §3) mirrored into Prometheus, labeled by stage name, so an
	// operator can watch spend without querying per-run state.
	TokensTotal *prometheus.CounterVec
	CostTotal   *prometheus.CounterVec

	// RateLimiterWaitSeconds observes how long the Bridging Scorer spent
	// blocked on the global classifier admission gate (internal/ratelimit)
	// per item — the signal an operator needs to tell "the classifier is
	// slow" apart from "the fleet is saturating the 1 QPS gate".
	RateLimiterWaitSeconds prometheus.Histogram

	// CacheHitsTotal/CacheMissesTotal derive the Score Cache's
	// (internal/scorecache) hit ratio: hits/(hits+misses).
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// CircuitBreakerState mirrors internal/resilience.CircuitBreaker.State()
	// (0=closed, 1=open, 2=half-open) per named breaker.
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics builds Metrics registered against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_started_total",
			Help: "Total number of pipeline runs started.",
		}, nil),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_completed_total",
			Help: "Total number of pipeline runs that reached a terminal status.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each stage executor invocation.",
			Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_runs_in_flight",
			Help: "Number of pipeline runs currently executing.",
		}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_tokens_total",
			Help: "Total LLM tokens consumed by a completed stage.",
		}, []string{"stage"}),
		CostTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_cost_total",
			Help: "Total estimated cost accrued by a completed stage.",
		}, []string{"stage"}),
		RateLimiterWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_rate_limiter_wait_seconds",
			Help:    "Time a bridging-score call spent waiting for classifier rate-limit admission.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_score_cache_hits_total",
			Help: "Score cache lookups served without a classifier call.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_score_cache_misses_total",
			Help: "Score cache lookups that required a classifier call.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"breaker"}),
	}
	registerer.MustRegister(
		m.RunsStarted, m.RunsCompleted, m.StageDuration, m.RunsInFlight,
		m.TokensTotal, m.CostTotal, m.RateLimiterWaitSeconds,
		m.CacheHitsTotal, m.CacheMissesTotal, m.CircuitBreakerState,
	)
	return m
}
