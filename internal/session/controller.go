package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/geolocation"
	"github.com/ridemap/ridemap/internal/mapsurface"
	"github.com/ridemap/ridemap/internal/notify"
	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/storage"
	"github.com/ridemap/ridemap/internal/util"
	"github.com/ridemap/ridemap/pkg/core"
)

var (
	ErrMissingRideFields    = errors.New("pickup and destination are required")
	ErrMissingAccountFields = errors.New("username and email are required")
	ErrClosed               = errors.New("controller is closed")
)

// RouteResolver resolves a driving route between two coordinates.
type RouteResolver interface {
	Resolve(ctx context.Context, from, to core.Coordinate) (core.Route, error)
}

// Publisher pushes session updates to live clients.
type Publisher interface {
	PublishSnapshot(snap core.Snapshot)
	PublishNotification(sessionID string, n core.Notification)
}

// Recorder receives ride and routing events for time-series storage.
type Recorder interface {
	RecordRoute(sessionID, outcome string, elapsed time.Duration, distanceMeters float64)
	RecordRide(trip core.Trip)
}

// Dependencies holds all dependencies for the controller
type Dependencies struct {
	Resolver          RouteResolver
	Storage           storage.Backend
	Publisher         Publisher
	Recorder          Recorder
	Metrics           *observability.RouteCollector
	Logger            *slog.Logger
	Map               mapsurface.Config
	NotificationDelay time.Duration
	RouteTimeout      time.Duration
}

// Controller owns the session registry and applies user actions to sessions.
type Controller struct {
	deps     Dependencies
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewController creates a controller. Resolver and Storage are required.
func NewController(deps Dependencies) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Map.Width == 0 && deps.Map.Height == 0 {
		deps.Map = mapsurface.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:     deps,
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Registry returns the live session registry.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// NewSession creates and registers a session with an empty map.
func (c *Controller) NewSession() (*Session, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	notes := notify.NewCenter(c.deps.NotificationDelay, func(n core.Notification) {
		c.deps.Publisher.PublishNotification(id, n)
	})
	s := newSession(id, mapsurface.New(c.deps.Map), notes, c.now())
	c.registry.Add(s)
	c.deps.Metrics.SetActiveSessions(c.registry.Len())
	c.deps.Logger.Info("session created", "sessionId", id)
	return s, nil
}

// Session returns the session with the given ID and marks it as used.
func (c *Controller) Session(id string) (*Session, error) {
	s, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	s.Touch(c.now())
	return s, nil
}

// CloseSession removes a session and aborts its in-flight route request.
func (c *Controller) CloseSession(id string) error {
	s, ok := c.registry.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	s.cancelRouteLocked()
	s.mu.Unlock()
	c.deps.Metrics.SetActiveSessions(c.registry.Len())
	c.deps.Logger.Info("session closed", "sessionId", id)
	return nil
}

// PruneIdle closes sessions unused for longer than maxIdle and returns how
// many were closed.
func (c *Controller) PruneIdle(maxIdle time.Duration) int {
	n := 0
	for _, s := range c.registry.IdleSince(c.now().Add(-maxIdle)) {
		if c.CloseSession(s.ID) == nil {
			n++
		}
	}
	return n
}

// ResolveCurrentLocation asks the locator for a single position and places
// the user marker there.
func (c *Controller) ResolveCurrentLocation(ctx context.Context, s *Session, loc geolocation.Locator) error {
	pos, err := loc.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, geolocation.ErrUnsupported) {
			s.notes.Error(msgLocationUnsupported)
		} else {
			s.notes.Error(msgLocationError, err.Error())
		}
		c.deps.Logger.Debug("geolocation failed", "sessionId", s.ID, "error", err)
		return fmt.Errorf("resolve current location: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.surface.SetMarker(core.RoleUser, pos); err != nil {
		return err
	}
	s.surface.Center(pos, s.surface.Config().LocateZoom)
	s.pickup = geo.FormatLatLon(pos)
	s.notes.Success(msgLocationFound)

	if _, ok := s.surface.Marker(core.RoleDestination); ok {
		c.startRouteLocked(s)
	}
	c.publishLocked(s)
	return nil
}

// SetDestinationFromClick places the destination marker at a clicked point
// and recomputes the route. Without a user marker the click still succeeds
// and only an error notification is raised.
func (c *Controller) SetDestinationFromClick(s *Session, pos core.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.surface.SetMarker(core.RoleDestination, pos); err != nil {
		return err
	}
	s.destination = geo.FormatLatLon(pos)
	s.notes.Success(msgDestinationSet)

	if _, ok := s.surface.Marker(core.RoleUser); ok {
		c.startRouteLocked(s)
	} else {
		s.notes.Error(msgLocationsRequired)
	}
	c.publishLocked(s)
	return nil
}

// ClearLocations empties both fields and every feature. Any in-flight route
// response is discarded.
func (c *Controller) ClearLocations(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRouteLocked()
	s.surface.Clear()
	s.pickup = ""
	s.destination = ""
	s.notes.Success(msgLocationsCleared)
	c.publishLocked(s)
}

// RequestRide records a trip from the pickup and destination texts.
func (c *Controller) RequestRide(s *Session, pickup, destination string) (core.Trip, error) {
	if util.AnyBlank(pickup, destination) {
		s.notes.Error(msgRideFieldsMissing)
		return core.Trip{}, ErrMissingRideFields
	}

	s.mu.Lock()
	s.pickup = pickup
	s.destination = destination
	trip := core.Trip{
		SessionID:   s.ID,
		Pickup:      pickup,
		Destination: destination,
		RequestedAt: c.now().UTC(),
	}
	if r, ok := s.surface.Route(); ok {
		trip.Route = &r
	}
	if pos, ok := s.surface.Marker(core.RoleUser); ok {
		trip.PickupPosition = &pos
	}
	if pos, ok := s.surface.Marker(core.RoleDestination); ok {
		trip.DestinationPosition = &pos
	}
	s.mu.Unlock()

	if err := c.deps.Storage.AddTrip(&trip); err != nil {
		s.notes.Error(msgRideNotSaved)
		c.deps.Logger.Error("failed to store trip", "sessionId", s.ID, "error", err)
		return core.Trip{}, fmt.Errorf("store trip: %w", err)
	}

	s.notes.Success(msgRideRequested, pickup, destination)
	c.deps.Metrics.IncRides()
	c.deps.Recorder.RecordRide(trip)
	c.deps.Logger.Info("ride requested", "sessionId", s.ID, "tripId", trip.ID, "label", util.TripLabel(pickup, destination))
	return trip, nil
}

// TripHistory returns the trips of the session, oldest first.
func (c *Controller) TripHistory(s *Session) ([]core.Trip, error) {
	trips, err := c.deps.Storage.ListTrips(s.ID)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}

// UpdateAccount stores the rider's account fields.
func (c *Controller) UpdateAccount(s *Session, username, email string) (core.Account, error) {
	if util.AnyBlank(username, email) {
		s.notes.Error(msgAccountFieldsMissing)
		return core.Account{}, ErrMissingAccountFields
	}

	acc := core.Account{
		SessionID: s.ID,
		Username:  username,
		Email:     email,
		UpdatedAt: c.now().UTC(),
	}
	if err := c.deps.Storage.SaveAccount(&acc); err != nil {
		s.notes.Error(msgAccountNotSaved)
		c.deps.Logger.Error("failed to store account", "sessionId", s.ID, "error", err)
		return core.Account{}, fmt.Errorf("store account: %w", err)
	}
	s.notes.Success(msgAccountUpdated)
	return acc, nil
}

// Wait blocks until every in-flight route request has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight route requests and waits for them to return.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) publishLocked(s *Session) {
	s.revision++
	c.deps.Publisher.PublishSnapshot(s.snapshotLocked())
}

type nopPublisher struct{}

func (nopPublisher) PublishSnapshot(core.Snapshot)                 {}
func (nopPublisher) PublishNotification(string, core.Notification) {}

type nopRecorder struct{}

func (nopRecorder) RecordRoute(string, string, time.Duration, float64) {}
func (nopRecorder) RecordRide(core.Trip)                               {}
