// pkg/core/location.go
package core

// Coordinate is a WGS84 (EPSG:4326) position in degrees.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Role tags a marker as the rider's own position or the chosen destination.
type Role string

const (
	RoleUser        Role = "user"
	RoleDestination Role = "destination"
)

// Roles lists marker roles in render order.
var Roles = []Role{RoleUser, RoleDestination}

// Valid reports whether r is a known marker role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleDestination
}

// Marker is a rendered point for one role. At most one exists per role.
type Marker struct {
	Role     Role       `json:"role"`
	Position Coordinate `json:"position"`
}

// Route is the path between the two markers as returned by the directions
// service. It is always replaced as a whole.
type Route struct {
	Path            []Coordinate `json:"path"`
	DistanceMeters  float64      `json:"distanceMeters"`
	DurationSeconds float64      `json:"durationSeconds"`
	Token           uint64       `json:"token"`
}

// Empty reports whether the route has no usable path.
func (r Route) Empty() bool {
	return len(r.Path) < 2
}

// View is the map viewport.
type View struct {
	Center Coordinate `json:"center"`
	Zoom   float64    `json:"zoom"`
}
