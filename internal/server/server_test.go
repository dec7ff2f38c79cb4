package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridemap/ridemap/internal/api"
	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/dispatcher"
	"github.com/ridemap/ridemap/internal/geolocation"
	"github.com/ridemap/ridemap/internal/handlers"
	"github.com/ridemap/ridemap/internal/hub"
	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/session"
	"github.com/ridemap/ridemap/internal/storage/memory"
	"github.com/ridemap/ridemap/pkg/core"
	"github.com/ridemap/ridemap/pkg/streaming"
)

type lineResolver struct{}

func (lineResolver) Resolve(_ context.Context, from, to core.Coordinate) (core.Route, error) {
	return core.Route{Path: []core.Coordinate{from, to}, DistanceMeters: 4200, DurationSeconds: 600}, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type testEnv struct {
	ctrl   *session.Controller
	srv    *httptest.Server
	client *api.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New(config.MemoryConfig{})
	require.NoError(t, store.Init())

	metrics, err := observability.NewRouteCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	h := hub.New(func(sessionID string, cmd streaming.CommandPayload) (any, error) {
		return d.Dispatch(dispatcher.Event{SessionID: sessionID, Command: cmd.Command, Args: cmd.Args})
	}, nil)

	ctrl := session.NewController(session.Dependencies{
		Resolver:  lineResolver{},
		Storage:   store,
		Publisher: h,
		Metrics:   metrics,
	})
	t.Cleanup(ctrl.Close)

	handlers.NewService(handlers.Dependencies{Controller: ctrl}).RegisterHandlers(d)

	s := New(config.ServerConfig{MetricsEnabled: true}, Dependencies{
		Controller: ctrl,
		Dispatcher: d,
		Hub:        h,
		Metrics:    metrics,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})

	return &testEnv{ctrl: ctrl, srv: srv, client: api.New(srv.URL)}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se *api.StatusError
	require.True(t, errors.As(err, &se), "expected StatusError, got %v", err)
	return se.StatusCode
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.client.Healthcheck())
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t)

	id, snap, err := env.client.CreateSession()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, 12.0, snap.View.Zoom)

	got, err := env.client.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.SessionID)
}

func TestUnknownSessionIs404(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Snapshot("nope")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	err = env.client.Command("nope", handlers.CmdStateGet, nil, nil)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = env.client.Trips("nope")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestCommand_MalformedBodyIs400(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	resp, err := http.Post(env.srv.URL+"/api/sessions/"+id+"/commands", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	err = env.client.Command(id, ":NO:SUCH:", nil, nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	err = env.client.Command(id, handlers.CmdDestinationSet, []string{"x"}, nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestCommand_ValidationIs422(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	err = env.client.Command(id, handlers.CmdRideRequest, []string{"Obelisco", ""}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))

	err = env.client.Command(id, handlers.CmdLocationCurrent, []string{"error", "1", "denied"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
}

func TestCommand_NaNCoordinatesRejected(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	err = env.client.Command(id, handlers.CmdDestinationSet, []string{"NaN", "0"}, nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	snap, err := env.client.Snapshot(id)
	require.NoError(t, err)
	assert.Empty(t, snap.Markers)
}

func TestWriteJSON_UnencodableIs500(t *testing.T) {
	rec := httptest.NewRecorder()

	writeJSON(rec, http.StatusOK, map[string]float64{"lat": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "failed to encode response")
}

func TestCommand_DestinationWithoutPickupReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	var snap core.Snapshot
	require.NoError(t, env.client.Command(id, handlers.CmdDestinationSet, []string{"-34.5711", "-58.4245"}, &snap))
	require.Len(t, snap.Markers, 1)
	assert.Equal(t, core.RoleDestination, snap.Markers[0].Role)

	notes, err := env.client.Notifications(id)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	assert.Equal(t, core.NotifyError, notes[len(notes)-1].Level)
}

func TestRideFlow(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	require.NoError(t, env.client.Command(id, handlers.CmdLocationCurrent, []string{"-34.6037", "-58.3816"}, nil))
	require.NoError(t, env.client.Command(id, handlers.CmdDestinationSet, []string{"-34.5711", "-58.4245"}, nil))
	env.ctrl.Wait()

	snap, err := env.client.Snapshot(id)
	require.NoError(t, err)
	require.NotNil(t, snap.Route)
	assert.Len(t, snap.Markers, 2)

	features, err := env.client.Features(id)
	require.NoError(t, err)
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(features, &fc))
	assert.Len(t, fc.Features, 3)

	var trip core.Trip
	require.NoError(t, env.client.Command(id, handlers.CmdRideRequest, []string{snap.Pickup, snap.Destination}, &trip))
	assert.NotNil(t, trip.Route)

	trips, err := env.client.Trips(id)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, snap.Pickup, trips[0].Pickup)

	notes, err := env.client.Notifications(id)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	assert.True(t, strings.HasPrefix(notes[len(notes)-1].Message, "Ride requested!"))

	notes, err = env.client.Notifications(id)
	require.NoError(t, err)
	assert.Empty(t, notes, "notifications are drained on read")
}

func TestTrips_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	resp, err := http.Get(env.srv.URL + "/api/sessions/" + id + "/trips")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw))
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	require.NoError(t, env.client.CloseSession(id))

	_, err = env.client.Snapshot(id)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.client.CreateSession()
	require.NoError(t, err)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocket_CommandAndSnapshot(t *testing.T) {
	env := newTestEnv(t)
	id, _, err := env.client.CreateSession()
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	data, err := streaming.MarshalEnvelope(streaming.TypeCommand, streaming.CommandPayload{
		ID: "1", Command: handlers.CmdLocationCurrent, Args: []string{"-34.6037", "-58.3816"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, data))

	seen := map[string]bool{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !(seen[streaming.TypeSnapshot] && seen[streaming.TypeResult]) {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var e streaming.Envelope
		require.NoError(t, json.Unmarshal(msg, &e))
		seen[e.Type] = true
	}
}

func TestWebsocket_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/sessions/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", dispatcher.ErrUnknownCommand), http.StatusBadRequest},
		{handlers.ErrInvalidArgs, http.StatusBadRequest},
		{session.ErrMissingAccountFields, http.StatusUnprocessableEntity},
		{geolocation.ErrTimeout, http.StatusUnprocessableEntity},
		{dispatcher.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
