package convert

import (
	"fmt"

	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/model"
	"github.com/ridemap/ridemap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// coordinateToPoint projects an optional coordinate to EPSG:3857.
func coordinateToPoint(c *core.Coordinate) geom.Point {
	if c == nil {
		return geom.Point{}
	}
	return geo.Point3857(*c)
}

// CoreToTrip converts a core.Trip to a GORM Trip. The route path is stored
// as a GeoJSON LineString.
func CoreToTrip(t core.Trip) (model.Trip, error) {
	out := model.Trip{
		ID:               t.ID,
		SessionID:        t.SessionID,
		Pickup:           t.Pickup,
		Destination:      t.Destination,
		PickupPoint:      coordinateToPoint(t.PickupPosition),
		DestinationPoint: coordinateToPoint(t.DestinationPosition),
		RequestedAt:      t.RequestedAt,
	}
	if t.Route != nil && !t.Route.Empty() {
		raw, err := geo.PathGeoJSON(t.Route.Path)
		if err != nil {
			return model.Trip{}, fmt.Errorf("failed to encode route: %w", err)
		}
		out.Route = datatypes.JSON(raw)
		out.RouteDistance = t.Route.DistanceMeters
		out.RouteDuration = t.Route.DurationSeconds
	}
	return out, nil
}

// CoreToAccount converts a core.Account to a GORM Account.
func CoreToAccount(a core.Account) model.Account {
	return model.Account{
		SessionID: a.SessionID,
		Username:  a.Username,
		Email:     a.Email,
		UpdatedAt: a.UpdatedAt,
	}
}
