// Package session owns per-client map sessions and the controller that
// drives marker placement, route recomputation and ride requests.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ridemap/ridemap/internal/mapsurface"
	"github.com/ridemap/ridemap/internal/notify"
	"github.com/ridemap/ridemap/pkg/core"
)

// Session is the explicit map-session object of one client. All fields are
// guarded by mu.
type Session struct {
	ID string

	mu          sync.Mutex
	surface     *mapsurface.Surface
	pickup      string
	destination string

	// token is the latest issued route request token; cancel aborts the
	// request that holds it.
	token   uint64
	cancel  context.CancelFunc
	routing bool

	revision  uint64
	createdAt time.Time
	lastSeen  time.Time

	notes *notify.Center
}

func newSession(id string, surface *mapsurface.Surface, notes *notify.Center, now time.Time) *Session {
	return &Session{
		ID:        id,
		surface:   surface,
		notes:     notes,
		createdAt: now,
		lastSeen:  now,
	}
}

// Notifications returns the notification center of the session.
func (s *Session) Notifications() *notify.Center {
	return s.notes
}

// Snapshot returns the current render state.
func (s *Session) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() core.Snapshot {
	snap := core.Snapshot{
		SessionID:   s.ID,
		Revision:    s.revision,
		Markers:     s.surface.Markers(),
		View:        s.surface.View(),
		Pickup:      s.pickup,
		Destination: s.destination,
		RouteToken:  s.token,
		Routing:     s.routing,
	}
	if r, ok := s.surface.Route(); ok {
		snap.Route = &r
	}
	return snap
}

// FeatureCollection renders the session layer as GeoJSON.
func (s *Session) FeatureCollection() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.FeatureCollection()
}

// Touch marks the session as used at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// cancelRouteLocked invalidates the current token and aborts its request.
func (s *Session) cancelRouteLocked() {
	s.token++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.routing = false
}
