// Package metrics holds the Prometheus collectors of the raffle backend
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "raffle"

// OtherFunction labels upstream calls to functions outside the known set
const OtherFunction = "other"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	functions map[string]struct{}

	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	fetches          *prometheus.CounterVec
	generation       prometheus.Gauge
	potBalance       prometheus.Gauge
}

// New registers every collector on a private registry. functions are the
// contract functions that get their own upstream label value; every other
// name is recorded as OtherFunction.
func New(functions ...string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	known := make(map[string]struct{}, len(functions))
	for _, fn := range functions {
		known[fn] = struct{}{}
	}

	return &Metrics{
		registry:  reg,
		functions: known,
		requestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "path"}),
		upstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Read-only contract calls forwarded to the hosted API",
		}, []string{"function", "outcome"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Hosted API call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fetches_total",
			Help:      "Snapshot fetch attempts by result",
		}, []string{"result"}),
		generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "generation",
			Help:      "Generation of the published snapshot",
		}),
		potBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "pot_balance_ustx",
			Help:      "Pot balance of the published snapshot in micro-STX",
		}),
	}
}

// Registry exposes the private registry for tests and custom handlers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestCounter.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveUpstream records one hosted API call
func (m *Metrics) ObserveUpstream(function, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if _, ok := m.functions[function]; !ok {
		function = OtherFunction
	}
	m.upstreamCalls.WithLabelValues(function, outcome).Inc()
	m.upstreamDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// ObserveFetch records a snapshot fetch outcome
func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

// SetSnapshot records the published generation and pot size
func (m *Metrics) SetSnapshot(generation uint64, potBalance float64) {
	if m == nil {
		return
	}
	m.generation.Set(float64(generation))
	m.potBalance.Set(potBalance)
}
