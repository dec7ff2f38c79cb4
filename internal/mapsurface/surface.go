// Package mapsurface holds the map viewport and the single vector layer of a
// ride session. The layer never carries more than three features: the user
// marker, the destination marker and the route line.
//
// A Surface is not safe for concurrent use; the owning session serializes access.
package mapsurface

import (
	"fmt"

	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/pkg/core"
)

// Config holds the initial viewport and the pixel size used when fitting.
type Config struct {
	Center     core.Coordinate
	Zoom       float64
	Width      int
	Height     int
	FitPadding int
	TileURL    string
	LocateZoom float64
}

// DefaultConfig centers on Buenos Aires at city zoom over OSM tiles.
func DefaultConfig() Config {
	return Config{
		Center:     core.Coordinate{Lon: -58.3817, Lat: -34.6033},
		Zoom:       12,
		Width:      1024,
		Height:     768,
		FitPadding: 50,
		TileURL:    "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		LocateZoom: 15,
	}
}

// Surface is the in-memory map state of one session.
type Surface struct {
	cfg     Config
	markers map[core.Role]core.Coordinate
	route   *core.Route
	view    core.View
}

// New creates a surface with the configured initial view and an empty layer.
func New(cfg Config) *Surface {
	return &Surface{
		cfg:     cfg,
		markers: make(map[core.Role]core.Coordinate, len(core.Roles)),
		view:    core.View{Center: cfg.Center, Zoom: cfg.Zoom},
	}
}

// Config returns the surface configuration.
func (s *Surface) Config() Config {
	return s.cfg
}

// SetMarker places the marker for role, discarding any previous marker of the
// same role. It reports whether one was replaced.
func (s *Surface) SetMarker(role core.Role, c core.Coordinate) (bool, error) {
	if !role.Valid() {
		return false, fmt.Errorf("unknown marker role %q", role)
	}
	if err := geo.Validate(c); err != nil {
		return false, err
	}
	_, replaced := s.markers[role]
	s.markers[role] = c
	return replaced, nil
}

// Marker returns the marker position for role.
func (s *Surface) Marker(role core.Role) (core.Coordinate, bool) {
	c, ok := s.markers[role]
	return c, ok
}

// Markers returns the live markers in render order.
func (s *Surface) Markers() []core.Marker {
	out := make([]core.Marker, 0, len(s.markers))
	for _, role := range core.Roles {
		if c, ok := s.markers[role]; ok {
			out = append(out, core.Marker{Role: role, Position: c})
		}
	}
	return out
}

// SetRoute replaces the route line wholesale.
func (s *Surface) SetRoute(r core.Route) error {
	if r.Empty() {
		return fmt.Errorf("route must have at least 2 points, got %d", len(r.Path))
	}
	path := make([]core.Coordinate, len(r.Path))
	copy(path, r.Path)
	r.Path = path
	s.route = &r
	return nil
}

// Route returns the displayed route.
func (s *Surface) Route() (core.Route, bool) {
	if s.route == nil {
		return core.Route{}, false
	}
	return *s.route, true
}

// Clear removes every feature from the layer. The view is left as is.
func (s *Surface) Clear() {
	clear(s.markers)
	s.route = nil
}

// Center recenters the viewport at the given zoom.
func (s *Surface) Center(c core.Coordinate, zoom float64) {
	s.view = core.View{Center: c, Zoom: zoom}
}

// FitPath fits the viewport to the path with the configured padding.
func (s *Surface) FitPath(path []core.Coordinate) error {
	extent, ok := geo.ExtentOf(path)
	if !ok {
		return fmt.Errorf("cannot fit an empty path")
	}
	center, zoom := geo.Fit(extent, s.cfg.Width, s.cfg.Height, s.cfg.FitPadding)
	s.view = core.View{Center: center, Zoom: zoom}
	return nil
}

// View returns the current viewport.
func (s *Surface) View() core.View {
	return s.view
}

// Len returns the number of features on the layer.
func (s *Surface) Len() int {
	n := len(s.markers)
	if s.route != nil {
		n++
	}
	return n
}
