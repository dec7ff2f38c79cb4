// Package route resolves driving routes between two map coordinates, with
// optional caching and metrics around the directions service.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ridemap/ridemap/internal/cache"
	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/osrm"
	"github.com/ridemap/ridemap/pkg/core"
)

// ErrNoRoute is returned when the directions service has no route for the pair.
var ErrNoRoute = osrm.ErrNoRoute

// Directions fetches a route from an external service.
type Directions interface {
	Route(ctx context.Context, from, to core.Coordinate) (core.Route, error)
}

// Resolver wraps a Directions source with validation, caching and metrics.
type Resolver struct {
	directions Directions
	cache      *cache.RouteCache
	metrics    *observability.RouteCollector
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables route caching.
func WithCache(c *cache.RouteCache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithMetrics records request durations and cache lookups.
func WithMetrics(m *observability.RouteCollector) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over the given directions source.
func NewResolver(d Directions, opts ...Option) *Resolver {
	r := &Resolver{directions: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the driving route from one coordinate to the other.
func (r *Resolver) Resolve(ctx context.Context, from, to core.Coordinate) (core.Route, error) {
	if err := geo.Validate(from); err != nil {
		return core.Route{}, fmt.Errorf("pickup: %w", err)
	}
	if err := geo.Validate(to); err != nil {
		return core.Route{}, fmt.Errorf("destination: %w", err)
	}

	if r.cache != nil {
		cached, ok := r.cache.Get(from, to)
		r.metrics.ObserveCache(ok)
		if ok {
			return cached, nil
		}
	}

	start := time.Now()
	rt, err := r.directions.Route(ctx, from, to)
	r.metrics.ObserveRequest(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, ErrNoRoute):
			r.logger.Warn("no route between points", "from", geo.FormatLatLon(from), "to", geo.FormatLatLon(to))
		case errors.Is(err, context.Canceled):
			r.logger.Debug("route request canceled", "from", geo.FormatLatLon(from), "to", geo.FormatLatLon(to))
		default:
			r.logger.Error("route request failed", "error", err, "from", geo.FormatLatLon(from), "to", geo.FormatLatLon(to))
		}
		return core.Route{}, err
	}
	if rt.Empty() {
		return core.Route{}, ErrNoRoute
	}

	r.cache.Set(from, to, rt)
	return rt, nil
}
