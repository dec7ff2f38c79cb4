package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ridemap/ridemap/internal/cache"
	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/dispatcher"
	"github.com/ridemap/ridemap/internal/handlers"
	"github.com/ridemap/ridemap/internal/hub"
	"github.com/ridemap/ridemap/internal/influx"
	"github.com/ridemap/ridemap/internal/logging"
	"github.com/ridemap/ridemap/internal/mapsurface"
	"github.com/ridemap/ridemap/internal/monitor"
	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/osrm"
	intOtel "github.com/ridemap/ridemap/internal/otel"
	"github.com/ridemap/ridemap/internal/route"
	"github.com/ridemap/ridemap/internal/server"
	"github.com/ridemap/ridemap/internal/session"
	"github.com/ridemap/ridemap/pkg/core"
	"github.com/ridemap/ridemap/pkg/streaming"
)

// logFiles are the per-run log outputs under logsDir.
type logFiles struct {
	main *os.File
	otel *os.File
}

func (l logFiles) Close() {
	for _, f := range []*os.File{l.main, l.otel} {
		if f != nil {
			_ = f.Close()
		}
	}
}

func openLogFiles(start time.Time) (logFiles, error) {
	dir := viper.GetString("logsDir")

	var files logFiles
	var err error
	files.main, err = logging.OpenLogFile(logging.LogFilePath(dir, AppName, start))
	if err != nil {
		return logFiles{}, err
	}
	if config.GetOTelConfig().Enabled {
		files.otel, err = logging.OpenLogFile(logging.LogFilePath(dir, AppName+".otel", start))
		if err != nil {
			files.Close()
			return logFiles{}, err
		}
	}
	return files, nil
}

func mapSurfaceConfig(mc config.MapConfig) mapsurface.Config {
	return mapsurface.Config{
		Center:     core.Coordinate{Lon: mc.CenterLon, Lat: mc.CenterLat},
		Zoom:       mc.Zoom,
		Width:      mc.Width,
		Height:     mc.Height,
		FitPadding: mc.FitPadding,
		TileURL:    mc.TileURL,
		LocateZoom: mc.LocateZoom,
	}
}

func newZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// newResolver builds the directions client with its metrics, and the route
// cache when osrm.cacheTtl is positive. The returned cache may be nil.
func newResolver(logger *slog.Logger, metrics *observability.RouteCollector) (*route.Resolver, *cache.RouteCache) {
	oc := config.GetOSRMConfig()
	client := osrm.New(osrm.Config{
		Endpoint:       oc.Endpoint,
		Timeout:        oc.Timeout,
		RequestsPerSec: oc.RequestsPerSec,
		UserAgent:      oc.UserAgent,
	})
	opts := []route.Option{
		route.WithMetrics(metrics),
		route.WithLogger(logger.With("component", "route")),
	}
	var rc *cache.RouteCache
	if oc.CacheTTL > 0 {
		rc = cache.NewRouteCache(oc.CacheTTL, oc.CacheSize)
		opts = append(opts, route.WithCache(rc))
	}
	return route.NewResolver(client, opts...), rc
}

func runServe(args []string) error {
	flags := newFlagSet("serve")
	flags.fs.String("listen", "", "HTTP listen address")
	flags.fs.String("storage", "", "trip storage: memory, sqlite or postgres")
	flags.fs.String("osrm", "", "OSRM route service endpoint")
	configErr, err := flags.parse(args)
	if err != nil {
		return err
	}

	start := time.Now()
	files, err := openLogFiles(start)
	if err != nil {
		return err
	}
	defer files.Close()

	logLevel := viper.GetString("logLevel")

	otelProvider, err := intOtel.New(config.GetOTelConfig(), files.otel)
	if err != nil {
		return fmt.Errorf("failed to set up OTel: %w", err)
	}

	var extra []slog.Handler
	if viper.GetBool("graylog.enabled") {
		gw, err := logging.NewGelfWriter(viper.GetString("graylog.address"))
		if err != nil {
			return err
		}
		extra = append(extra, logging.NewGelfHandler(gw, logging.ParseLevel(logLevel), AppName))
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(files.main, logLevel, otelProvider.LoggerProvider(), extra...)
	logger := slogManager.Logger()
	slog.SetDefault(logger)
	zl := newZerolog(files.main, logLevel)

	if configErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", configErr)
	}
	logger.Info("Starting up", "version", Version, "buildDate", BuildDate)

	metrics, err := observability.NewRouteCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := openStorage(config.GetStorageConfig(), logger.With("component", "storage"), zl)
	if err != nil {
		return err
	}

	var recorder session.Recorder
	influxManager := influx.NewManager(config.GetInfluxConfig(), zl.With().Str("component", "influx").Logger(),
		filepath.Join(viper.GetString("logsDir"), "influx_backup.log.gz"))
	if err := influxManager.Connect(context.Background()); err != nil {
		logger.Info("InfluxDB recording off", "reason", err)
	} else {
		recorder = influxManager
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(zl.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	h := hub.New(func(sessionID string, cmd streaming.CommandPayload) (any, error) {
		return d.Dispatch(dispatcher.Event{
			SessionID: sessionID,
			Command:   cmd.Command,
			Args:      cmd.Args,
			Timestamp: time.Now(),
		})
	}, logger.With("component", "hub"))

	resolver, routeCache := newResolver(logger, metrics)
	mc := config.GetMapConfig()
	ctrl := session.NewController(session.Dependencies{
		Resolver:          resolver,
		Storage:           store,
		Publisher:         h,
		Recorder:          recorder,
		Metrics:           metrics,
		Logger:            logger.With("component", "session"),
		Map:               mapSurfaceConfig(mc),
		NotificationDelay: mc.NotificationDelay,
		RouteTimeout:      config.GetOSRMConfig().Timeout,
	})

	slogManager.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{slog.Int("activeSessions", ctrl.Registry().Len())}
	})

	handlers.NewService(handlers.Dependencies{
		Controller: ctrl,
		Logger:     logger.With("component", "handlers"),
	}).RegisterHandlers(d)
	logger.Info("Handlers registered", "commands", d.Commands())

	srv := server.New(config.GetServerConfig(), server.Dependencies{
		Controller: ctrl,
		Dispatcher: d,
		Hub:        h,
		Metrics:    metrics,
		Logger:     logger.With("component", "server"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := config.GetSessionConfig()
	var statusRecorder monitor.StatusRecorder
	if influxManager.IsValid || influxManager.BackupWriter != nil {
		statusRecorder = influxManager
	}
	var cachePruner monitor.CachePruner
	if routeCache != nil {
		cachePruner = routeCache
	}
	monitorService := monitor.NewService(monitor.Dependencies{
		Controller: ctrl,
		Clients:    h,
		Cache:      cachePruner,
		Recorder:   statusRecorder,
		Logger:     logger.With("component", "monitor"),
		StatusPath: filepath.Join(viper.GetString("logsDir"), "status.json"),
		Interval:   sc.PruneInterval,
		MaxIdle:    sc.MaxIdle,
	})
	if err := monitorService.Start(); err != nil {
		logger.Warn("Status monitor not started", "error", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serveErr:
		if err != nil {
			logger.Error("HTTP server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetServerConfig().ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	monitorService.Stop()
	ctrl.Close()
	d.Close()
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
	}
	if err := influxManager.Close(); err != nil {
		logger.Error("Failed to close InfluxDB", "error", err)
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Warn("Failed to flush logs", "error", err)
	}
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "otel shutdown:", err)
	}
	return err
}
