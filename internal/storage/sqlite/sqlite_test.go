package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/database"
	"github.com/ridemap/ridemap/internal/model"
	"github.com/ridemap/ridemap/internal/storage"
	"github.com/ridemap/ridemap/pkg/core"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Dumper  = (*Backend)(nil)
)

func TestBackend_StoresTrips(t *testing.T) {
	b, err := New(config.SQLiteConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	trip := &core.Trip{SessionID: "s1", Pickup: "a", Destination: "b"}
	require.NoError(t, b.AddTrip(trip))

	trips, err := b.ListTrips("s1")
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, trip.ID, trips[0].ID)
}

func TestBackend_CloseWritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ridemap.db")
	b, err := New(config.SQLiteConfig{DumpPath: path, DumpInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.SaveAccount(&core.Account{SessionID: "s1", Username: "rider", Email: "r@example.com"}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")

	_, err = os.Stat(path)
	require.NoError(t, err)

	disk, err := database.OpenSqlite(path)
	require.NoError(t, err)
	var got model.Account
	require.NoError(t, disk.Take(&got, "session_id = ?", "s1").Error)
	assert.Equal(t, "rider", got.Username)
}

func TestBackend_DumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.db")
	b, err := New(config.SQLiteConfig{DumpPath: path, DumpInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
