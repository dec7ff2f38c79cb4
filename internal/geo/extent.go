package geo

import (
	"math"

	"github.com/ridemap/ridemap/pkg/core"
)

const (
	// resolutionZoom0 is metres per pixel at zoom 0 for 256px web mercator tiles.
	resolutionZoom0 = 2 * math.Pi * 6378137 / 256

	// MaxZoom is the deepest zoom level served by the OSM tile background.
	MaxZoom = 19
)

// Extent is a bounding box in EPSG:3857 metres.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// ExtentOf computes the projected bounding box of a path.
// An empty path yields false.
func ExtentOf(path []core.Coordinate) (Extent, bool) {
	if len(path) == 0 {
		return Extent{}, false
	}
	x, y := To3857(path[0])
	e := Extent{MinX: x, MinY: y, MaxX: x, MaxY: y}
	for _, c := range path[1:] {
		x, y = To3857(c)
		e.MinX = math.Min(e.MinX, x)
		e.MinY = math.Min(e.MinY, y)
		e.MaxX = math.Max(e.MaxX, x)
		e.MaxY = math.Max(e.MaxY, y)
	}
	return e, true
}

// Center returns the midpoint of the extent as a WGS84 coordinate.
func (e Extent) Center() core.Coordinate {
	return From3857((e.MinX+e.MaxX)/2, (e.MinY+e.MaxY)/2)
}

// Fit returns the center and the largest zoom at which e, padded by
// padding pixels on every side, fits a width x height viewport.
func Fit(e Extent, width, height, padding int) (core.Coordinate, float64) {
	center := e.Center()

	usableW := float64(width - 2*padding)
	usableH := float64(height - 2*padding)
	if usableW <= 0 || usableH <= 0 {
		return center, 0
	}

	res := math.Max((e.MaxX-e.MinX)/usableW, (e.MaxY-e.MinY)/usableH)
	if res <= 0 {
		return center, MaxZoom
	}

	zoom := math.Log2(resolutionZoom0 / res)
	return center, math.Max(0, math.Min(MaxZoom, zoom))
}
