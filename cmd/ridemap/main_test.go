package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/database"
	gormstorage "github.com/ridemap/ridemap/internal/storage/gorm"
	"github.com/ridemap/ridemap/pkg/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0644))
	return dir
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"version"}, &out))
	assert.Contains(t, out.String(), "ridemap "+Version)
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run([]string{"fly"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"fly"`)
}

func TestRoute_PrintsGeoJSON(t *testing.T) {
	t.Cleanup(viper.Reset)
	var gotPath string
	osrmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"code":"Ok","routes":[{"geometry":{"type":"LineString","coordinates":[[-58.3816,-34.6037],[-58.4245,-34.5711]]},"distance":6123.4,"duration":745.2}]}`)
	}))
	defer osrmSrv.Close()

	var out bytes.Buffer
	err := run([]string{"route", "--config", t.TempDir(), "--osrm", osrmSrv.URL + "/route/v1/driving", "--",
		"-34.6037,-58.3816", "-34.5711,-58.4245"}, &out)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/route/v1/driving/-58.381600,-34.603700;"), gotPath)

	var got routeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 6123.4, got.DistanceMeters)
	assert.Equal(t, 745.2, got.DurationSeconds)
	assert.Equal(t, "6.1 km, 13 min", got.Summary)
	assert.Contains(t, string(got.Geometry), "LineString")
}

func TestRoute_BadCoordinate(t *testing.T) {
	t.Cleanup(viper.Reset)
	err := run([]string{"route", "--config", t.TempDir(), "--", "north", "-34.5711,-58.4245"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pickup")
}

func TestRoute_Usage(t *testing.T) {
	t.Cleanup(viper.Reset)
	err := run([]string{"route", "--config", t.TempDir(), "--", "-34.6,-58.3"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage")
}

func TestTrips_FromSQLiteDump(t *testing.T) {
	t.Cleanup(viper.Reset)
	dumpPath := filepath.Join(t.TempDir(), "ridemap.db")

	db, err := database.OpenSqlite("")
	require.NoError(t, err)
	store := gormstorage.New(gormstorage.Dependencies{DB: db, CloseDB: true})
	require.NoError(t, store.Init())
	require.NoError(t, store.AddTrip(&core.Trip{
		SessionID:   "s1",
		Pickup:      "Obelisco",
		Destination: "Palermo",
		RequestedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, database.DumpMemoryDBToDisk(db, dumpPath))
	require.NoError(t, store.Close())

	dir := writeConfig(t, fmt.Sprintf(`{"storage":{"type":"sqlite","sqlite":{"dumpPath":%q}}}`, dumpPath))

	var out bytes.Buffer
	require.NoError(t, run([]string{"trips", "--config", dir, "s1"}, &out))

	var trips []core.Trip
	require.NoError(t, json.Unmarshal(out.Bytes(), &trips))
	require.Len(t, trips, 1)
	assert.Equal(t, "Obelisco", trips[0].Pickup)
	assert.Equal(t, "Palermo", trips[0].Destination)
}

func TestTrips_MemoryNeedsServer(t *testing.T) {
	t.Cleanup(viper.Reset)
	err := run([]string{"trips", "--config", t.TempDir(), "s1"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")
}

func TestTrips_FromServer(t *testing.T) {
	t.Cleanup(viper.Reset)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/s9/trips", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":1,"sessionId":"s9","pickup":"a","destination":"b","requestedAt":"2026-01-01T00:00:00Z"}]`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, run([]string{"trips", "--config", t.TempDir(), "--server", srv.URL, "s9"}, &out))
	assert.Contains(t, out.String(), `"pickup": "a"`)
}

func TestHealthcheck(t *testing.T) {
	t.Cleanup(viper.Reset)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, run([]string{"healthcheck", "--config", t.TempDir(), "--server", srv.URL}, &out))
	assert.Equal(t, "ok\n", out.String())
}

func TestHealthcheck_Down(t *testing.T) {
	t.Cleanup(viper.Reset)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := run([]string{"healthcheck", "--config", t.TempDir(), "--server", srv.URL}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMapSurfaceConfig(t *testing.T) {
	mc := mapSurfaceConfig(config.MapConfig{CenterLat: -34.6, CenterLon: -58.38, Zoom: 12, Width: 800, Height: 600})

	assert.Equal(t, core.Coordinate{Lon: -58.38, Lat: -34.6}, mc.Center)
	assert.Equal(t, 800, mc.Width)
}
