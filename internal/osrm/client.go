// Package osrm is a minimal client for the OSRM route service.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/pkg/core"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint  = "https://router.project-osrm.org/route/v1/driving"
	DefaultUserAgent = "ridemap/1.0"
	DefaultTimeout   = 10 * time.Second
)

// ErrNoRoute is returned when the service answers but has no usable route.
var ErrNoRoute = errors.New("no route found")

// Config controls the outbound directions request.
type Config struct {
	Endpoint       string
	Timeout        time.Duration
	RequestsPerSec float64
	UserAgent      string
}

// Client resolves driving routes between two coordinates.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a client, filling unset config fields with defaults.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
	}
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// RouteURL builds the request URL. OSRM takes lon,lat order.
func (c *Client) RouteURL(from, to core.Coordinate) string {
	return fmt.Sprintf("%s/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.cfg.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry json.RawMessage `json:"geometry"`
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
	} `json:"routes"`
}

// Route fetches the first driving route between from and to.
func (c *Client) Route(ctx context.Context, from, to core.Coordinate) (core.Route, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.Route{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RouteURL(from, to), nil)
	if err != nil {
		return core.Route{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Route{}, fmt.Errorf("directions request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return core.Route{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed routeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return core.Route{}, fmt.Errorf("directions service returned HTTP %d", resp.StatusCode)
		}
		return core.Route{}, fmt.Errorf("failed to decode response: %w", err)
	}

	// OSRM answers NoRoute with a 400 and a JSON body.
	if parsed.Code == "NoRoute" || (parsed.Code == "Ok" && len(parsed.Routes) == 0) {
		return core.Route{}, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		return core.Route{}, fmt.Errorf("directions service returned HTTP %d: %s %s",
			resp.StatusCode, parsed.Code, parsed.Message)
	}
	if parsed.Code != "Ok" {
		return core.Route{}, fmt.Errorf("%w: %s %s", ErrNoRoute, parsed.Code, parsed.Message)
	}

	first := parsed.Routes[0]
	path, err := geo.ParseGeoJSONPath(first.Geometry)
	if err != nil {
		return core.Route{}, fmt.Errorf("invalid route geometry: %w", err)
	}
	if len(path) < 2 {
		return core.Route{}, ErrNoRoute
	}

	return core.Route{
		Path:            path,
		DistanceMeters:  first.Distance,
		DurationSeconds: first.Duration,
	}, nil
}
