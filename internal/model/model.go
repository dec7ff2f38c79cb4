// Package model holds the GORM table structs for trips and accounts.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Trip{},
	&Account{},
}

// Trip is a requested ride. Points are EPSG:3857 and stored as WKB; an empty
// point means the marker was not placed.
type Trip struct {
	ID               uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID        string         `json:"sessionId" gorm:"size:64;index:idx_trip_session_id"`
	Pickup           string         `json:"pickup" gorm:"size:255"`
	Destination      string         `json:"destination" gorm:"size:255"`
	PickupPoint      geom.Point     `json:"pickupPoint"`
	DestinationPoint geom.Point     `json:"destinationPoint"`
	RequestedAt      time.Time      `json:"requestedAt" gorm:"index:idx_trip_requested_at"`
	Route            datatypes.JSON `json:"route"`
	RouteDistance    float64        `json:"routeDistance"`
	RouteDuration    float64        `json:"routeDuration"`
}

func (*Trip) TableName() string {
	return "trips"
}

// Account holds the rider profile of one session.
type Account struct {
	SessionID string    `json:"sessionId" gorm:"primaryKey;size:64"`
	Username  string    `json:"username" gorm:"size:127"`
	Email     string    `json:"email" gorm:"size:255"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (*Account) TableName() string {
	return "accounts"
}
