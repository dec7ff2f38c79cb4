// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/ridemap/ridemap/pkg/core"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Trip history (assigns ID to the passed pointer)
	AddTrip(t *core.Trip) error
	ListTrips(sessionID string) ([]core.Trip, error)

	// Rider accounts, one per session
	SaveAccount(a *core.Account) error
	GetAccount(sessionID string) (core.Account, error)
}

// Dumper is an optional interface for backends that can persist a snapshot
// of their contents to disk on demand.
type Dumper interface {
	Dump() error
}
