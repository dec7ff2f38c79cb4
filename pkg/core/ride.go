// pkg/core/ride.go
package core

import "time"

// Trip is a requested ride, kept in the session's trip history.
type Trip struct {
	ID          uint      `json:"id"`
	SessionID   string    `json:"sessionId"`
	Pickup      string    `json:"pickup"`
	Destination string    `json:"destination"`
	RequestedAt time.Time `json:"requestedAt"`
	Route       *Route    `json:"route,omitempty"`

	// Marker positions at request time, when placed.
	PickupPosition      *Coordinate `json:"pickupPosition,omitempty"`
	DestinationPosition *Coordinate `json:"destinationPosition,omitempty"`
}

// Account holds the rider's profile fields.
type Account struct {
	SessionID string    `json:"sessionId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NotificationLevel is the severity of a user-facing notification
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
)

// Notification is a transient message shown to the rider.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Expired reports whether the notification is past its display window.
func (n Notification) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// Snapshot is everything a client needs to re-render a session.
type Snapshot struct {
	SessionID   string   `json:"sessionId"`
	Revision    uint64   `json:"revision"`
	Markers     []Marker `json:"markers"`
	Route       *Route   `json:"route,omitempty"`
	View        View     `json:"view"`
	Pickup      string   `json:"pickup"`
	Destination string   `json:"destination"`
	RouteToken  uint64   `json:"routeToken"`
	Routing     bool     `json:"routing"`
}
