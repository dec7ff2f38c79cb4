// Package influx records route and ride events as InfluxDB points. When the
// server is unreachable points go to a gzipped line-protocol backup file.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/monitor"
	"github.com/ridemap/ridemap/pkg/core"
)

// Measurement names.
const (
	MeasurementRoute  = "route_request"
	MeasurementRide   = "ride_request"
	MeasurementStatus = "service_status"

	serviceName = "ridemap"
)

// retentionSeconds keeps ride events for 90 days.
const retentionSeconds = 60 * 60 * 24 * 90

// ErrDisabled is returned by Connect when InfluxDB is turned off in config.
var ErrDisabled = errors.New("influx is disabled")

// Manager writes points to one bucket, or to the backup file.
type Manager struct {
	Client  influxdb2.Client
	Writer  influxdb2_api.WriteAPI
	IsValid bool
	Logger  zerolog.Logger

	cfg        config.InfluxConfig
	backupPath string

	mu           sync.Mutex
	backupFile   *os.File
	BackupWriter *gzip.Writer
}

// NewManager creates an unconnected manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{cfg: cfg, Logger: log, backupPath: backupPath}
}

// Connect pings the server and prepares the bucket. An unreachable server is
// not an error: the manager switches to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Warn().Err(err).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.OpenBackup()
	}

	if err := m.ensureBucket(ctx); err != nil {
		return err
	}
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.IsValid = true
	m.Logger.Info().Str("url", m.cfg.URL()).Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) ensureBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("failed to create influx org %s: %w", m.cfg.Org, err)
		}
	}

	buckets := m.Client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: retentionSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to create influx bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// OpenBackup opens the gzip backup file for appending.
func (m *Manager) OpenBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	f, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating influx backup file: %w", err)
	}
	m.backupFile = f
	m.BackupWriter = gzip.NewWriter(f)
	return nil
}

// WritePoint sends the point to InfluxDB, or appends it to the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influx client not initialized and backup writer not available")
	}
	line := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to influx backup file: %w", err)
	}
	return nil
}

// RecordRoute writes one route recomputation outcome.
func (m *Manager) RecordRoute(sessionID, outcome string, elapsed time.Duration, distanceMeters float64) {
	if err := m.WritePoint(RoutePoint(sessionID, outcome, elapsed, distanceMeters, time.Now())); err != nil {
		m.Logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to record route point")
	}
}

// RecordRide writes one requested trip.
func (m *Manager) RecordRide(trip core.Trip) {
	if err := m.WritePoint(RidePoint(trip)); err != nil {
		m.Logger.Error().Err(err).Str("sessionId", trip.SessionID).Msg("Failed to record ride point")
	}
}

// RecordStatus writes one periodic service report.
func (m *Manager) RecordStatus(st monitor.Status) {
	if err := m.WritePoint(StatusPoint(st)); err != nil {
		m.Logger.Error().Err(err).Msg("Failed to record status point")
	}
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return nil
	}
	err := m.BackupWriter.Close()
	if cerr := m.backupFile.Close(); err == nil {
		err = cerr
	}
	m.BackupWriter = nil
	m.backupFile = nil
	return err
}

// RoutePoint builds the point for a route recomputation.
func RoutePoint(sessionID, outcome string, elapsed time.Duration, distanceMeters float64, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementRoute).
		AddTag("outcome", outcome).
		AddTag("session", sessionID).
		AddField("elapsed_ms", float64(elapsed)/float64(time.Millisecond)).
		SetTime(at)
	if distanceMeters > 0 {
		p.AddField("distance_m", distanceMeters)
	}
	return p
}

// RidePoint builds the point for a requested trip.
func RidePoint(trip core.Trip) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementRide).
		AddTag("session", trip.SessionID).
		AddField("pickup", trip.Pickup).
		AddField("destination", trip.Destination).
		SetTime(trip.RequestedAt)
	if trip.Route != nil {
		p.AddField("distance_m", trip.Route.DistanceMeters).
			AddField("duration_s", trip.Route.DurationSeconds)
	}
	if trip.PickupPosition != nil {
		p.AddField("pickup_lat", trip.PickupPosition.Lat).
			AddField("pickup_lon", trip.PickupPosition.Lon)
	}
	return p
}

// StatusPoint builds the point for a service report.
func StatusPoint(st monitor.Status) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementStatus).
		AddTag("service", serviceName).
		AddField("active_sessions", st.ActiveSessions).
		AddField("routing_sessions", st.RoutingSessions).
		AddField("live_clients", st.LiveClients).
		AddField("pruned", st.Pruned).
		AddField("expired_routes", st.ExpiredRoutes).
		SetTime(st.Time)
}
