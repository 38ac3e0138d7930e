package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Prometheus collector of the service. A nil *Manager is
// valid and records nothing, so handlers can be built without metrics.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	attemptsRecorded    *prometheus.CounterVec
	blockedAttempts     prometheus.Counter
	validationsCreated  prometheus.Counter
	conflictsRecovered  prometheus.Counter
	leaderboardQueries  *prometheus.CounterVec
	leaderboardCache    *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager. Without WithRegistry a fresh
// registry carrying the Go and process collectors is used.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cirque",
		subsystem:        "progression",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.attemptsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "attempts_recorded_total",
		Help:      "Attempts appended to the ledger, by outcome",
	}, []string{"outcome"})

	m.blockedAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blocked_attempts_total",
		Help:      "Failing attempts that reached the step's critical failure threshold",
	})

	m.validationsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "validations_created_total",
		Help:      "Validations created by a first success",
	})

	m.conflictsRecovered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "validation_conflicts_recovered_total",
		Help:      "Concurrent validation inserts resolved by re-reading the existing row",
	})

	m.leaderboardQueries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_queries_total",
		Help:      "Leaderboard queries, by scope",
	}, []string{"scope"})

	m.leaderboardCache = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_cache_total",
		Help:      "Leaderboard cache lookups, by result (hit, miss, error)",
	}, []string{"result"})

	m.operationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Duration of application operations",
		Buckets:   m.histogramBuckets,
	}, []string{"operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests, by route and status code",
	}, []string{"route", "code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by route",
		Buckets:   m.histogramBuckets,
	}, []string{"route"})
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAttempt counts a ledger append.
func (m *Manager) RecordAttempt(succeeded, blocked bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	m.attemptsRecorded.WithLabelValues(outcome).Inc()
	if blocked {
		m.blockedAttempts.Inc()
	}
}

// RecordValidationCreated counts a new validation.
func (m *Manager) RecordValidationCreated() {
	if m == nil {
		return
	}
	m.validationsCreated.Inc()
}

// RecordConflictRecovered counts a lost insert race that was resolved.
func (m *Manager) RecordConflictRecovered() {
	if m == nil {
		return
	}
	m.conflictsRecovered.Inc()
}

// RecordLeaderboardQuery counts a leaderboard query for scope.
func (m *Manager) RecordLeaderboardQuery(scope string) {
	if m == nil {
		return
	}
	m.leaderboardQueries.WithLabelValues(scope).Inc()
}

// RecordCacheResult counts a cache lookup outcome: hit, miss or error.
func (m *Manager) RecordCacheResult(result string) {
	if m == nil {
		return
	}
	m.leaderboardCache.WithLabelValues(result).Inc()
}

// ObserveOperation records how long an application operation took.
func (m *Manager) ObserveOperation(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveHTTPRequest records one served request.
func (m *Manager) ObserveHTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
