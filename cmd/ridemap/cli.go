package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ridemap/ridemap/internal/api"
	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/database"
	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/logging"
	"github.com/ridemap/ridemap/internal/storage"
	gormstorage "github.com/ridemap/ridemap/internal/storage/gorm"
	"github.com/ridemap/ridemap/internal/util"
	"github.com/ridemap/ridemap/pkg/core"
)

const defaultServerURL = "http://localhost:8080"

// cliLogger writes to stderr so that command output on stdout stays parseable.
func cliLogger() (*slog.Logger, zerolog.Logger) {
	m := logging.NewSlogManager()
	level := viper.GetString("logLevel")
	m.Setup(os.Stderr, level, nil)
	return m.Logger(), newZerolog(os.Stderr, level)
}

// routeOutput is printed by the route command.
type routeOutput struct {
	Geometry        json.RawMessage `json:"geometry"`
	DistanceMeters  float64         `json:"distanceMeters"`
	DurationSeconds float64         `json:"durationSeconds"`
	Summary         string          `json:"summary"`
}

func runRoute(args []string, out io.Writer) error {
	flags := newFlagSet("route")
	flags.fs.String("osrm", "", "OSRM route service endpoint")
	if _, err := flags.parse(args); err != nil {
		return err
	}
	if flags.fs.NArg() != 2 {
		return errors.New(`usage: ridemap route [flags] -- "<lat>,<lon>" "<lat>,<lon>"`)
	}
	from, err := geo.ParseLatLon(flags.fs.Arg(0))
	if err != nil {
		return fmt.Errorf("pickup: %w", err)
	}
	to, err := geo.ParseLatLon(flags.fs.Arg(1))
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	logger, _ := cliLogger()
	ctx, cancel := context.WithTimeout(context.Background(), config.GetOSRMConfig().Timeout+
		config.GetOSRMConfig().Timeout/2)
	defer cancel()

	resolver, _ := newResolver(logger, nil)
	r, err := resolver.Resolve(ctx, from, to)
	if err != nil {
		return err
	}
	geometry, err := geo.PathGeoJSON(r.Path)
	if err != nil {
		return err
	}
	return writeJSON(out, routeOutput{
		Geometry:        geometry,
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.DurationSeconds,
		Summary:         util.FormatDistance(r.DistanceMeters) + ", " + util.FormatDuration(r.DurationSeconds),
	})
}

func runTrips(args []string, out io.Writer) error {
	flags := newFlagSet("trips")
	serverURL := flags.fs.String("server", "", "query a running server instead of the configured storage")
	flags.fs.String("storage", "", "trip storage: sqlite or postgres")
	if _, err := flags.parse(args); err != nil {
		return err
	}
	if flags.fs.NArg() != 1 {
		return errors.New("usage: ridemap trips <sessionID>")
	}
	sessionID := flags.fs.Arg(0)

	var trips []core.Trip
	var err error
	if *serverURL != "" {
		trips, err = api.New(*serverURL).Trips(sessionID)
	} else {
		trips, err = storedTrips(sessionID)
	}
	if err != nil {
		return err
	}
	if trips == nil {
		trips = []core.Trip{}
	}
	return writeJSON(out, trips)
}

// storedTrips reads the trip history straight from persistent storage.
func storedTrips(sessionID string) ([]core.Trip, error) {
	logger, zl := cliLogger()
	cfg := config.GetStorageConfig()

	var backend storage.Backend
	switch cfg.Type {
	case "sqlite":
		if _, err := os.Stat(cfg.SQLite.DumpPath); err != nil {
			return nil, fmt.Errorf("no SQLite dump at %s: %w", cfg.SQLite.DumpPath, err)
		}
		db, err := database.OpenSqlite(cfg.SQLite.DumpPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite dump: %w", err)
		}
		backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger, CloseDB: true})
		if err := backend.Init(); err != nil {
			_ = backend.Close()
			return nil, err
		}
	case "postgres":
		var err error
		backend, err = openStorage(cfg, logger, zl)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("storage %q keeps no history outside the server, use --server", cfg.Type)
	}
	defer backend.Close()

	return backend.ListTrips(sessionID)
}

func runHealthcheck(args []string, out io.Writer) error {
	flags := newFlagSet("healthcheck")
	serverURL := flags.fs.String("server", defaultServerURL, "server base URL")
	if _, err := flags.parse(args); err != nil {
		return err
	}
	if err := api.New(*serverURL).Healthcheck(); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
