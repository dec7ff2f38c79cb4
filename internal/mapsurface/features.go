package mapsurface

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/pkg/core"
)

// FeatureKind distinguishes marker points from the route line.
type FeatureKind string

const (
	KindMarker FeatureKind = "marker"
	KindRoute  FeatureKind = "route"
)

const routeFeatureID = "route"

// Style mirrors the circle and stroke styles the client renders.
type Style struct {
	Radius      float64 `json:"radius,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	StrokeColor string  `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth"`
}

var (
	userMarkerStyle        = Style{Radius: 8, FillColor: "#000000", StrokeColor: "#ffffff", StrokeWidth: 2}
	destinationMarkerStyle = Style{Radius: 8, FillColor: "#1DB954", StrokeColor: "#ffffff", StrokeWidth: 2}
	routeStyle             = Style{StrokeColor: "#1DB954", StrokeWidth: 4}
)

// MarkerStyle returns the style for a marker role.
func MarkerStyle(role core.Role) Style {
	if role == core.RoleDestination {
		return destinationMarkerStyle
	}
	return userMarkerStyle
}

// Feature is one entry of the vector layer.
type Feature struct {
	ID       string
	Kind     FeatureKind
	Role     core.Role
	Geometry geom.Geometry
	Style    Style
}

// Features returns the layer contents in render order: user, destination, route.
func (s *Surface) Features() ([]Feature, error) {
	out := make([]Feature, 0, 3)
	for _, m := range s.Markers() {
		out = append(out, Feature{
			ID:       string(m.Role),
			Kind:     KindMarker,
			Role:     m.Role,
			Geometry: geo.Point4326(m.Position).AsGeometry(),
			Style:    MarkerStyle(m.Role),
		})
	}
	if s.route != nil {
		ls, err := geo.LineString(s.route.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to build route geometry: %w", err)
		}
		out = append(out, Feature{
			ID:       routeFeatureID,
			Kind:     KindRoute,
			Geometry: ls.AsGeometry(),
			Style:    routeStyle,
		})
	}
	return out, nil
}

// FeatureCollection renders the layer as a GeoJSON FeatureCollection in EPSG:4326.
func (s *Surface) FeatureCollection() ([]byte, error) {
	features, err := s.Features()
	if err != nil {
		return nil, err
	}

	fc := make(geom.GeoJSONFeatureCollection, 0, len(features))
	for _, f := range features {
		props := map[string]interface{}{
			"kind":  string(f.Kind),
			"style": f.Style,
		}
		if f.Role != "" {
			props["role"] = string(f.Role)
		}
		if f.Kind == KindRoute {
			props["distanceMeters"] = s.route.DistanceMeters
			props["durationSeconds"] = s.route.DurationSeconds
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry:   f.Geometry,
			ID:         f.ID,
			Properties: props,
		})
	}
	return json.Marshal(fc)
}
