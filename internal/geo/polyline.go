package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/ridemap/ridemap/pkg/core"
)

// LineString builds a lon/lat LineString from a route path.
func LineString(path []core.Coordinate) (geom.LineString, error) {
	if len(path) < 2 {
		return geom.LineString{}, fmt.Errorf("polyline must have at least 2 points, got %d", len(path))
	}

	flatCoords := make([]float64, 0, len(path)*2)
	for _, c := range path {
		flatCoords = append(flatCoords, c.Lon, c.Lat)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// PathFromLineString flattens a lon/lat LineString back into coordinates.
func PathFromLineString(ls geom.LineString) []core.Coordinate {
	seq := ls.Coordinates()
	path := make([]core.Coordinate, seq.Length())
	for i := range path {
		xy := seq.GetXY(i)
		path[i] = core.Coordinate{Lon: xy.X, Lat: xy.Y}
	}
	return path
}

// ParseGeoJSONPath parses a GeoJSON LineString geometry into a route path.
func ParseGeoJSONPath(input []byte) ([]core.Coordinate, error) {
	g, err := geom.UnmarshalGeoJSON(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse route geometry: %w", err)
	}
	if !g.IsLineString() {
		return nil, fmt.Errorf("route geometry must be a LineString, got %s", g.Type())
	}
	return PathFromLineString(g.MustAsLineString()), nil
}

// PathGeoJSON renders a route path as a GeoJSON LineString geometry.
func PathGeoJSON(path []core.Coordinate) ([]byte, error) {
	ls, err := LineString(path)
	if err != nil {
		return nil, err
	}
	return ls.MarshalJSON()
}
