package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/ridemap/ridemap/pkg/core"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Rider input and the directions service speak EPSG:4326 (lon/lat degrees).
// The map surface and stored trip points use EPSG:3857 (web mercator metres), the same projection the tile background uses.
// Stored points are WKB, which SQLite and Postgres both accept as an opaque blob.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

var (
	to3857   = wgs84.EPSG().Transform(4326, 3857)
	from3857 = wgs84.EPSG().Transform(3857, 4326)
)

// Validate checks that c is finite and lies within the WGS84 degree ranges.
func Validate(c core.Coordinate) error {
	if !finite(c.Lat) || !finite(c.Lon) {
		return fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidCoordinates, c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidCoordinates, c.Lat, c.Lon)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseLatLon parses a form field in the format "lat, lon" into a coordinate.
// Whitespace around either component is ignored.
func ParseLatLon(text string) (core.Coordinate, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	c := core.Coordinate{Lon: lon, Lat: lat}
	if err := Validate(c); err != nil {
		return core.Coordinate{}, err
	}
	return c, nil
}

// ParseLatLonPair parses two separate lat and lon strings, as sent by a map click.
func ParseLatLonPair(lat, lon string) (core.Coordinate, error) {
	return ParseLatLon(lat + "," + lon)
}

// FormatLatLon renders c the way the pickup and destination fields show it.
func FormatLatLon(c core.Coordinate) string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon)
}

// To3857 projects a WGS84 coordinate to web mercator metres.
func To3857(c core.Coordinate) (x, y float64) {
	x, y, _ = to3857(c.Lon, c.Lat, 0)
	return x, y
}

// From3857 converts web mercator metres back to a WGS84 coordinate.
func From3857(x, y float64) core.Coordinate {
	lon, lat, _ := from3857(x, y, 0)
	return core.Coordinate{Lon: lon, Lat: lat}
}

// Point3857 creates an EPSG:3857 point from a WGS84 coordinate.
func Point3857(c core.Coordinate) geom.Point {
	x, y := To3857(c)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
}

// CoordinateFrom3857Point reverses Point3857. An empty point yields false.
func CoordinateFrom3857Point(p geom.Point) (core.Coordinate, bool) {
	coords, ok := p.Coordinates()
	if !ok {
		return core.Coordinate{}, false
	}
	return From3857(coords.X, coords.Y), true
}

// Point4326 creates a lon/lat point, used for GeoJSON output.
func Point4326(c core.Coordinate) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: c.Lon, Y: c.Lat},
			Type: geom.DimXY,
		},
	)
}
