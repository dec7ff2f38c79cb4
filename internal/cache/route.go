// Package cache keeps short-lived routing results so repeated lookups for the
// same pickup/destination pair do not hit the directions service again.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/ridemap/ridemap/pkg/core"
)

type routeEntry struct {
	route  core.Route
	expiry time.Time
}

// RouteCache is a thread-safe TTL cache of resolved routes keyed by endpoint pair.
type RouteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
	routes  map[string]routeEntry
	now     func() time.Time
}

// NewRouteCache creates a cache. A non-positive ttl disables caching.
// maxSize bounds the number of entries; zero means unbounded.
func NewRouteCache(ttl time.Duration, maxSize int) *RouteCache {
	return &RouteCache{
		ttl:     ttl,
		maxSize: maxSize,
		routes:  make(map[string]routeEntry),
		now:     time.Now,
	}
}

// Key builds the cache key for a pair, rounded to 6 decimal places.
func Key(from, to core.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", from.Lon, from.Lat, to.Lon, to.Lat)
}

// Get returns a copy of the cached route for the pair, if it has not expired.
func (c *RouteCache) Get(from, to core.Coordinate) (core.Route, bool) {
	if c == nil || c.ttl <= 0 {
		return core.Route{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.routes[Key(from, to)]
	if !ok || c.now().After(e.expiry) {
		return core.Route{}, false
	}
	r := e.route
	r.Path = append([]core.Coordinate(nil), e.route.Path...)
	return r, true
}

// Set stores a route for the pair. The token is not cached.
func (c *RouteCache) Set(from, to core.Coordinate, r core.Route) {
	if c == nil || c.ttl <= 0 {
		return
	}
	r.Token = 0
	r.Path = append([]core.Coordinate(nil), r.Path...)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.maxSize > 0 && len(c.routes) >= c.maxSize {
		c.evictLocked(now)
	}
	c.routes[Key(from, to)] = routeEntry{route: r, expiry: now.Add(c.ttl)}
}

// evictLocked drops expired entries, then the entry closest to expiry if the
// cache is still full.
func (c *RouteCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.routes {
		if now.After(e.expiry) {
			delete(c.routes, k)
			continue
		}
		if oldestKey == "" || e.expiry.Before(oldest) {
			oldestKey, oldest = k, e.expiry
		}
	}
	if len(c.routes) >= c.maxSize && oldestKey != "" {
		delete(c.routes, oldestKey)
	}
}

// Prune removes expired entries and returns how many were dropped.
func (c *RouteCache) Prune() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.routes {
		if now.After(e.expiry) {
			delete(c.routes, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *RouteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}
