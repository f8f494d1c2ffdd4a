package gate

import (
	"errors"
	"time"

	"github.com/ggoodman/authgate-go/auth"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	cacheResultHit   = "hit"
	cacheResultMiss  = "miss"
	cacheResultError = "error"
)

// Metrics provides Prometheus metrics for the gate.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	cacheWrites      *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	coalescedTotal   prometheus.Counter
}

var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics creates a new, unregistered Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_requests_total",
				Help: "Total number of authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_cache_lookups_total",
				Help: "Total number of identity cache lookups by result",
			},
			[]string{"result"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_cache_writes_total",
				Help: "Total number of identity cache writes by result",
			},
			[]string{"result"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authgate_upstream_duration_seconds",
				Help:    "Latency of identity provider lookups by result",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		coalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authgate_upstream_coalesced_total",
				Help: "Total number of lookups answered by another in-flight lookup",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.cacheLookups.Describe(ch)
	m.cacheWrites.Describe(ch)
	m.upstreamDuration.Describe(ch)
	m.coalescedTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.cacheLookups.Collect(ch)
	m.cacheWrites.Collect(ch)
	m.upstreamDuration.Collect(ch)
	m.coalescedTotal.Collect(ch)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrInternal):
		return "internal"
	case errors.Is(err, auth.ErrUpstreamUnauthorized):
		return "upstream_unauthorized"
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

func (m *Metrics) request(err error) {
	m.requestsTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) cacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheWrite(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) upstream(d time.Duration, err error) {
	m.upstreamDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) coalesced() {
	m.coalescedTotal.Inc()
}
