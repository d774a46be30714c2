package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector with client_golang vectors.
type PrometheusCollector struct {
	movements  *prometheus.CounterVec
	operations *prometheus.CounterVec
	opLatency  *prometheus.HistogramVec

	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	oracleCache   *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the vectors and registers them on reg.
func NewPrometheusCollector(namespace string, reg prometheus.Registerer) *PrometheusCollector {
	pc := &PrometheusCollector{
		movements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_movements_total",
				Help:      "Ledger movements written, by kind",
			},
			[]string{"kind"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Service operations by outcome class",
			},
			[]string{"operation", "outcome"},
		),
		opLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Service operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		oracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_calls_total",
				Help:      "Price oracle calls by source, operation and result",
			},
			[]string{"source", "operation", "result"},
		),
		oracleLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "oracle_call_duration_seconds",
				Help:      "Price oracle call latency",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source", "operation"},
		),
		oracleCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_cache_lookups_total",
				Help:      "Quote cache lookups by result",
			},
			[]string{"operation", "result"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "oracle_circuit_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		pc.movements, pc.operations, pc.opLatency,
		pc.oracleCalls, pc.oracleLatency, pc.oracleCache, pc.circuitState,
		pc.requests, pc.requestLatency,
	)
	return pc
}

func (pc *PrometheusCollector) RecordMovement(kind string) {
	pc.movements.WithLabelValues(kind).Inc()
}

func (pc *PrometheusCollector) RecordOperation(op string, class string, duration time.Duration) {
	pc.operations.WithLabelValues(op, class).Inc()
	pc.opLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordOracleCall(source, op string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	pc.oracleCalls.WithLabelValues(source, op, result).Inc()
	pc.oracleLatency.WithLabelValues(source, op).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordOracleCache(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	pc.oracleCache.WithLabelValues(op, result).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
}

func (pc *PrometheusCollector) RecordRequest(method, route string, status int, duration time.Duration) {
	pc.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pc.requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}
