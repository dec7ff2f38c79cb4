// Package observability exposes Prometheus metrics for route resolution and
// ride sessions.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route request outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeNoRoute  = "no_route"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
	OutcomeStale    = "stale"
)

// RouteCollector bundles the Prometheus metrics of the routing path.
type RouteCollector struct {
	gatherer prometheus.Gatherer

	RequestDuration prometheus.Histogram
	Requests        *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	RidesRequested  prometheus.Counter
	ActiveSessions  prometheus.Gauge
}

// NewRouteCollector registers routing metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice reuses the existing
// collectors.
func NewRouteCollector(reg prometheus.Registerer) (*RouteCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ridemap_route_request_duration_seconds",
		Help:    "Latency of outbound directions requests.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "ridemap_route_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemap_route_requests_total",
		Help: "Route recomputations, labeled by outcome.",
	}, []string{"outcome"}), "ridemap_route_requests_total")
	if err != nil {
		return nil, err
	}

	cache, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemap_route_cache_lookups_total",
		Help: "Route cache lookups, labeled by result.",
	}, []string{"result"}), "ridemap_route_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	rides, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ridemap_rides_requested_total",
		Help: "Ride requests accepted.",
	}), "ridemap_rides_requested_total")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ridemap_active_sessions",
		Help: "Number of live map sessions.",
	}), "ridemap_active_sessions")
	if err != nil {
		return nil, err
	}

	return &RouteCollector{
		gatherer:        gatherer,
		RequestDuration: duration,
		Requests:        requests,
		CacheLookups:    cache,
		RidesRequested:  rides,
		ActiveSessions:  sessions,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RouteCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records the duration of one outbound directions request.
func (c *RouteCollector) ObserveRequest(d time.Duration) {
	if c == nil || c.RequestDuration == nil {
		return
	}
	c.RequestDuration.Observe(d.Seconds())
}

// IncOutcome counts a route recomputation by outcome.
func (c *RouteCollector) IncOutcome(outcome string) {
	if c == nil || c.Requests == nil {
		return
	}
	c.Requests.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a cache hit or miss.
func (c *RouteCollector) ObserveCache(hit bool) {
	if c == nil || c.CacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// IncRides counts an accepted ride request.
func (c *RouteCollector) IncRides() {
	if c == nil || c.RidesRequested == nil {
		return
	}
	c.RidesRequested.Inc()
}

// SetActiveSessions updates the live session gauge.
func (c *RouteCollector) SetActiveSessions(n int) {
	if c == nil || c.ActiveSessions == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
