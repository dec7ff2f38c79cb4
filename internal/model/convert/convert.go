// Package convert provides functions to convert GORM models to core models
package convert

import (
	"fmt"

	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/model"
	"github.com/ridemap/ridemap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToCoordinate converts a stored EPSG:3857 point, nil for an empty point.
func pointToCoordinate(p geom.Point) *core.Coordinate {
	c, ok := geo.CoordinateFrom3857Point(p)
	if !ok {
		return nil
	}
	return &c
}

// TripToCore converts a GORM Trip to a core.Trip.
func TripToCore(t model.Trip) (core.Trip, error) {
	out := core.Trip{
		ID:                  t.ID,
		SessionID:           t.SessionID,
		Pickup:              t.Pickup,
		Destination:         t.Destination,
		RequestedAt:         t.RequestedAt,
		PickupPosition:      pointToCoordinate(t.PickupPoint),
		DestinationPosition: pointToCoordinate(t.DestinationPoint),
	}
	if len(t.Route) > 0 {
		path, err := geo.ParseGeoJSONPath(t.Route)
		if err != nil {
			return core.Trip{}, fmt.Errorf("trip %d: %w", t.ID, err)
		}
		out.Route = &core.Route{
			Path:            path,
			DistanceMeters:  t.RouteDistance,
			DurationSeconds: t.RouteDuration,
		}
	}
	return out, nil
}

// TripsToCore converts a slice of GORM trips, keeping their order.
func TripsToCore(trips []model.Trip) ([]core.Trip, error) {
	out := make([]core.Trip, 0, len(trips))
	for _, t := range trips {
		c, err := TripToCore(t)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AccountToCore converts a GORM Account to a core.Account.
func AccountToCore(a model.Account) core.Account {
	return core.Account{
		SessionID: a.SessionID,
		Username:  a.Username,
		Email:     a.Email,
		UpdatedAt: a.UpdatedAt,
	}
}
