package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/geolocation"
	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/route"
	"github.com/ridemap/ridemap/internal/storage/memory"
	"github.com/ridemap/ridemap/pkg/core"
)

var (
	obelisco = core.Coordinate{Lon: -58.3816, Lat: -34.6037}
	palermo  = core.Coordinate{Lon: -58.4245, Lat: -34.5711}
	belgrano = core.Coordinate{Lon: -58.4563, Lat: -34.5627}
)

type reply struct {
	route core.Route
	err   error
}

type request struct {
	ctx      context.Context
	from, to core.Coordinate
	reply    chan reply
}

// gateResolver hands every Resolve call to the test and blocks until the
// test replies. With ignoreCancel set it keeps waiting after cancellation,
// which lets a superseded response arrive late.
type gateResolver struct {
	requests     chan *request
	ignoreCancel bool
}

func newGate() *gateResolver {
	return &gateResolver{requests: make(chan *request, 16)}
}

func (g *gateResolver) Resolve(ctx context.Context, from, to core.Coordinate) (core.Route, error) {
	req := &request{ctx: ctx, from: from, to: to, reply: make(chan reply, 1)}
	g.requests <- req
	if g.ignoreCancel {
		r := <-req.reply
		return r.route, r.err
	}
	select {
	case r := <-req.reply:
		return r.route, r.err
	case <-ctx.Done():
		return core.Route{}, ctx.Err()
	}
}

func (g *gateResolver) next(t *testing.T) *request {
	t.Helper()
	select {
	case req := <-g.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a route request")
		return nil
	}
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []core.Snapshot
	notes     []core.Notification
}

func (p *recordingPublisher) PublishSnapshot(s core.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
}

func (p *recordingPublisher) PublishNotification(_ string, n core.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, n)
}

type fixture struct {
	ctrl    *Controller
	gate    *gateResolver
	pub     *recordingPublisher
	metrics *observability.RouteCollector
	store   *memory.Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	metrics, err := observability.NewRouteCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		gate:    newGate(),
		pub:     &recordingPublisher{},
		metrics: metrics,
		store:   memory.New(config.MemoryConfig{}),
	}
	f.ctrl = NewController(Dependencies{
		Resolver:  f.gate,
		Storage:   f.store,
		Publisher: f.pub,
		Metrics:   metrics,
	})
	t.Cleanup(f.ctrl.Close)
	return f
}

func pathBetween(a, b core.Coordinate) core.Route {
	mid := core.Coordinate{Lon: (a.Lon + b.Lon) / 2, Lat: (a.Lat + b.Lat) / 2}
	return core.Route{Path: []core.Coordinate{a, mid, b}, DistanceMeters: 4200, DurationSeconds: 540}
}

func lastNote(t *testing.T, s *Session) core.Notification {
	t.Helper()
	pending := s.Notifications().Drain(time.Now())
	require.NotEmpty(t, pending)
	return pending[len(pending)-1]
}

func (f *fixture) locate(t *testing.T, s *Session, c core.Coordinate) {
	t.Helper()
	require.NoError(t, f.ctrl.ResolveCurrentLocation(context.Background(), s, geolocation.Position(c)))
}

func TestNewSession_InitialState(t *testing.T) {
	f := newFixture(t)

	s, err := f.ctrl.NewSession()
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.NotEmpty(t, snap.SessionID)
	assert.Empty(t, snap.Markers)
	assert.Nil(t, snap.Route)
	assert.Equal(t, 12.0, snap.View.Zoom)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveSessions))

	got, err := f.ctrl.Session(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestSession_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveCurrentLocation_PlacesUserMarker(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	f.locate(t, s, obelisco)

	snap := s.Snapshot()
	require.Len(t, snap.Markers, 1)
	assert.Equal(t, core.RoleUser, snap.Markers[0].Role)
	assert.Equal(t, core.View{Center: obelisco, Zoom: 15}, snap.View)
	assert.Equal(t, "-34.603700, -58.381600", snap.Pickup)
	assert.Equal(t, msgLocationFound, lastNote(t, s).Message)

	f.ctrl.Wait()
	assert.Empty(t, f.gate.requests, "no route without a destination")
}

func TestResolveCurrentLocation_Denied(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	err := f.ctrl.ResolveCurrentLocation(context.Background(), s,
		geolocation.Failure(geolocation.CodePermissionDenied, "User denied Geolocation"))

	require.ErrorIs(t, err, geolocation.ErrPermissionDenied)
	n := lastNote(t, s)
	assert.Equal(t, core.NotifyError, n.Level)
	assert.Contains(t, n.Message, "Error getting location")
	assert.Empty(t, s.Snapshot().Markers)
}

func TestResolveCurrentLocation_Unsupported(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	err := f.ctrl.ResolveCurrentLocation(context.Background(), s, geolocation.Unsupported{})

	require.ErrorIs(t, err, geolocation.ErrUnsupported)
	assert.Equal(t, msgLocationUnsupported, lastNote(t, s).Message)
}

func TestSetDestination_WithoutUserMarker(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	require.NoError(t, f.ctrl.SetDestinationFromClick(s, palermo))

	snap := s.Snapshot()
	require.Len(t, snap.Markers, 1)
	assert.Equal(t, core.RoleDestination, snap.Markers[0].Role)
	assert.Equal(t, "-34.571100, -58.424500", snap.Destination)
	assert.Equal(t, msgLocationsRequired, lastNote(t, s).Message)

	f.ctrl.Wait()
	assert.Empty(t, f.gate.requests)
}

func TestSetDestination_InvalidCoordinate(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	err := f.ctrl.SetDestinationFromClick(s, core.Coordinate{Lon: 0, Lat: 91})

	require.Error(t, err)
	assert.Empty(t, s.Snapshot().Markers)
}

func TestRoute_AppliedWhenBothMarkersSet(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)

	require.NoError(t, f.ctrl.SetDestinationFromClick(s, palermo))
	req := f.gate.next(t)
	assert.Equal(t, obelisco, req.from)
	assert.Equal(t, palermo, req.to)
	assert.True(t, s.Snapshot().Routing)

	req.reply <- reply{route: pathBetween(obelisco, palermo)}
	f.ctrl.Wait()

	snap := s.Snapshot()
	require.NotNil(t, snap.Route)
	assert.Equal(t, uint64(1), snap.Route.Token)
	assert.False(t, snap.Routing)
	assert.NotEqual(t, 15.0, snap.View.Zoom, "view is fitted to the route")
	assert.Equal(t, msgRouteShown, lastNote(t, s).Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues(observability.OutcomeApplied)))
}

func TestRoute_LocateAfterDestinationTriggersRoute(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	_ = f.ctrl.SetDestinationFromClick(s, palermo)

	f.locate(t, s, obelisco)

	req := f.gate.next(t)
	req.reply <- reply{route: pathBetween(obelisco, palermo)}
	f.ctrl.Wait()
	assert.NotNil(t, s.Snapshot().Route)
}

func TestRoute_FailureKeepsPreviousRoute(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)
	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	first := pathBetween(obelisco, palermo)
	f.gate.next(t).reply <- reply{route: first}
	f.ctrl.Wait()

	_ = f.ctrl.SetDestinationFromClick(s, belgrano)
	f.gate.next(t).reply <- reply{err: errors.New("connection reset")}
	f.ctrl.Wait()

	snap := s.Snapshot()
	require.NotNil(t, snap.Route)
	assert.Equal(t, first.Path, snap.Route.Path, "stale route stays displayed")
	assert.Equal(t, msgRouteError, lastNote(t, s).Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues(observability.OutcomeFailed)))
}

func TestRoute_NoRouteKeepsPreviousRoute(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)
	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	first := pathBetween(obelisco, palermo)
	f.gate.next(t).reply <- reply{route: first}
	f.ctrl.Wait()

	_ = f.ctrl.SetDestinationFromClick(s, belgrano)
	f.gate.next(t).reply <- reply{err: route.ErrNoRoute}
	f.ctrl.Wait()

	snap := s.Snapshot()
	require.NotNil(t, snap.Route)
	assert.Equal(t, first.Path, snap.Route.Path)
	assert.Equal(t, msgNoRoute, lastNote(t, s).Message)
}

func TestRoute_NewRequestCancelsSuperseded(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)

	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	older := f.gate.next(t)
	_ = f.ctrl.SetDestinationFromClick(s, belgrano)
	newer := f.gate.next(t)

	select {
	case <-older.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request was not canceled")
	}

	newer.reply <- reply{route: pathBetween(obelisco, belgrano)}
	f.ctrl.Wait()

	snap := s.Snapshot()
	require.NotNil(t, snap.Route)
	assert.Equal(t, belgrano, snap.Route.Path[len(snap.Route.Path)-1])
	assert.Equal(t, uint64(2), snap.Route.Token)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues(observability.OutcomeStale)))
}

func TestRoute_LateOlderResponseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.gate.ignoreCancel = true
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)

	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	older := f.gate.next(t)
	_ = f.ctrl.SetDestinationFromClick(s, belgrano)
	newer := f.gate.next(t)

	newer.reply <- reply{route: pathBetween(obelisco, belgrano)}
	older.reply <- reply{route: pathBetween(obelisco, palermo)}
	f.ctrl.Wait()

	snap := s.Snapshot()
	require.NotNil(t, snap.Route)
	assert.Equal(t, belgrano, snap.Route.Path[len(snap.Route.Path)-1], "older response must never win")
}

func TestClearLocations_DiscardsInFlight(t *testing.T) {
	f := newFixture(t)
	f.gate.ignoreCancel = true
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)
	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	req := f.gate.next(t)

	f.ctrl.ClearLocations(s)
	req.reply <- reply{route: pathBetween(obelisco, palermo)}
	f.ctrl.Wait()

	snap := s.Snapshot()
	assert.Empty(t, snap.Markers)
	assert.Nil(t, snap.Route)
	assert.Empty(t, snap.Pickup)
	assert.Empty(t, snap.Destination)
	assert.False(t, snap.Routing)
}

func TestClearLocations_RemovesRoute(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)
	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	f.gate.next(t).reply <- reply{route: pathBetween(obelisco, palermo)}
	f.ctrl.Wait()

	f.ctrl.ClearLocations(s)

	snap := s.Snapshot()
	assert.Empty(t, snap.Markers)
	assert.Nil(t, snap.Route)
	assert.Equal(t, msgLocationsCleared, lastNote(t, s).Message)
}

func TestRequestRide_MissingFields(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	_, err := f.ctrl.RequestRide(s, "  ", "Palermo")

	require.ErrorIs(t, err, ErrMissingRideFields)
	assert.Equal(t, msgRideFieldsMissing, lastNote(t, s).Message)
	trips, _ := f.ctrl.TripHistory(s)
	assert.Empty(t, trips)
}

func TestRequestRide_StoresTripWithRoute(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)
	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	f.gate.next(t).reply <- reply{route: pathBetween(obelisco, palermo)}
	f.ctrl.Wait()

	trip, err := f.ctrl.RequestRide(s, "Obelisco", "Palermo")
	require.NoError(t, err)
	_, err = f.ctrl.RequestRide(s, "Palermo", "Belgrano")
	require.NoError(t, err)

	assert.NotZero(t, trip.ID)
	require.NotNil(t, trip.Route)
	assert.Equal(t, 4200.0, trip.Route.DistanceMeters)
	require.NotNil(t, trip.PickupPosition)
	require.NotNil(t, trip.DestinationPosition)
	assert.Equal(t, obelisco, *trip.PickupPosition)
	assert.Equal(t, palermo, *trip.DestinationPosition)
	assert.Contains(t, lastNote(t, s).Message, "Pickup: Palermo\nDestination: Belgrano")

	trips, err := f.ctrl.TripHistory(s)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "Obelisco", trips[0].Pickup)
	assert.Equal(t, "Belgrano", trips[1].Destination)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RidesRequested))
}

func TestUpdateAccount(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	_, err := f.ctrl.UpdateAccount(s, "rider", "")
	require.ErrorIs(t, err, ErrMissingAccountFields)
	assert.Equal(t, msgAccountFieldsMissing, lastNote(t, s).Message)

	acc, err := f.ctrl.UpdateAccount(s, "rider", "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, s.ID, acc.SessionID)
	assert.Equal(t, msgAccountUpdated, lastNote(t, s).Message)

	stored, err := f.store.GetAccount(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "rider@example.com", stored.Email)
}

func TestPublisher_ReceivesSnapshotsAndNotifications(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	f.locate(t, s, obelisco)
	f.ctrl.ClearLocations(s)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.snapshots, 2)
	assert.Less(t, f.pub.snapshots[0].Revision, f.pub.snapshots[1].Revision)
	assert.Len(t, f.pub.notes, 2)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()

	require.NoError(t, f.ctrl.CloseSession(s.ID))
	assert.ErrorIs(t, f.ctrl.CloseSession(s.ID), ErrSessionNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestPruneIdle(t *testing.T) {
	f := newFixture(t)
	now := time.Unix(10_000, 0)
	f.ctrl.now = func() time.Time { return now }

	idle, _ := f.ctrl.NewSession()
	now = now.Add(time.Hour)
	active, _ := f.ctrl.NewSession()

	assert.Equal(t, 1, f.ctrl.PruneIdle(30*time.Minute))
	_, err := f.ctrl.Session(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.ctrl.Session(active.ID)
	assert.NoError(t, err)
}

func TestClose_CancelsInFlight(t *testing.T) {
	f := newFixture(t)
	s, _ := f.ctrl.NewSession()
	f.locate(t, s, obelisco)
	_ = f.ctrl.SetDestinationFromClick(s, palermo)
	f.gate.next(t)

	f.ctrl.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues(observability.OutcomeCanceled)))
	_, err := f.ctrl.NewSession()
	assert.ErrorIs(t, err, ErrClosed)
}
