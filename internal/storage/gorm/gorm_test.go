package gormstorage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridemap/ridemap/internal/database"
	"github.com/ridemap/ridemap/internal/storage"
	"github.com/ridemap/ridemap/pkg/core"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSqlite("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, CloseDB: true})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestInit_NoDB(t *testing.T) {
	assert.Error(t, New(Dependencies{}).Init())
}

func TestAddTrip_AssignsIDs(t *testing.T) {
	b := newTestBackend(t)

	first := &core.Trip{SessionID: "s1", Pickup: "a", Destination: "b", RequestedAt: time.Now().UTC()}
	second := &core.Trip{SessionID: "s1", Pickup: "c", Destination: "d", RequestedAt: time.Now().UTC()}
	require.NoError(t, b.AddTrip(first))
	require.NoError(t, b.AddTrip(second))

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
}

func TestAddTrip_RequiresSession(t *testing.T) {
	b := newTestBackend(t)
	assert.Error(t, b.AddTrip(&core.Trip{Pickup: "a"}))
}

func TestListTrips_PerSessionWithRoute(t *testing.T) {
	b := newTestBackend(t)
	pickup := core.Coordinate{Lon: -58.3816, Lat: -34.6037}
	dest := core.Coordinate{Lon: -58.4245, Lat: -34.5711}

	require.NoError(t, b.AddTrip(&core.Trip{
		SessionID:      "s1",
		Pickup:         "Obelisco",
		Destination:    "Palermo",
		PickupPosition: &pickup,
		Route: &core.Route{
			Path:            []core.Coordinate{pickup, dest},
			DistanceMeters:  5100,
			DurationSeconds: 840,
		},
	}))
	require.NoError(t, b.AddTrip(&core.Trip{SessionID: "s2", Pickup: "x", Destination: "y"}))
	require.NoError(t, b.AddTrip(&core.Trip{SessionID: "s1", Pickup: "Palermo", Destination: "Obelisco"}))

	trips, err := b.ListTrips("s1")
	require.NoError(t, err)
	require.Len(t, trips, 2)

	assert.Equal(t, "Obelisco", trips[0].Pickup)
	require.NotNil(t, trips[0].Route)
	assert.Equal(t, []core.Coordinate{pickup, dest}, trips[0].Route.Path)
	assert.Equal(t, 5100.0, trips[0].Route.DistanceMeters)
	require.NotNil(t, trips[0].PickupPosition)
	assert.InDelta(t, pickup.Lat, trips[0].PickupPosition.Lat, 1e-9)
	assert.Nil(t, trips[0].DestinationPosition)
	assert.Nil(t, trips[1].Route)

	none, err := b.ListTrips("unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccount_SaveAndReplace(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.SaveAccount(&core.Account{SessionID: "s1", Username: "old", Email: "old@example.com"}))
	require.NoError(t, b.SaveAccount(&core.Account{SessionID: "s1", Username: "new", Email: "new@example.com"}))

	got, err := b.GetAccount("s1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Username)
	assert.Equal(t, "new@example.com", got.Email)
}

func TestGetAccount_NotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.GetAccount("missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
