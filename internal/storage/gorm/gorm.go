// Package gormstorage implements the storage.Backend interface on any GORM
// connection. The SQLite and PostgreSQL stores both use it.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ridemap/ridemap/internal/database"
	"github.com/ridemap/ridemap/internal/model"
	"github.com/ridemap/ridemap/internal/model/convert"
	"github.com/ridemap/ridemap/internal/storage"
	"github.com/ridemap/ridemap/pkg/core"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// CloseDB closes the connection pool on Close. Leave false when the
	// connection is owned elsewhere.
	CloseDB bool
}

// Backend implements storage.Backend with synchronous GORM writes.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.deps.Logger.Info("GORM storage ready", "dialect", b.deps.DB.Dialector.Name())
	return nil
}

// Close releases the connection pool when the backend owns it.
func (b *Backend) Close() error {
	if !b.deps.CloseDB || b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddTrip inserts a trip and assigns its ID.
func (b *Backend) AddTrip(t *core.Trip) error {
	if t.SessionID == "" {
		return fmt.Errorf("trip has no session ID")
	}
	m, err := convert.CoreToTrip(*t)
	if err != nil {
		return err
	}
	m.ID = 0
	if err := b.deps.DB.Create(&m).Error; err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	t.ID = m.ID
	return nil
}

// ListTrips returns the trips of a session, oldest first.
func (b *Backend) ListTrips(sessionID string) ([]core.Trip, error) {
	var rows []model.Trip
	err := b.deps.DB.
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return convert.TripsToCore(rows)
}

// SaveAccount inserts or replaces the account of a session.
func (b *Backend) SaveAccount(a *core.Account) error {
	if a.SessionID == "" {
		return fmt.Errorf("account has no session ID")
	}
	m := convert.CoreToAccount(*a)
	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetAccount returns the account of a session.
func (b *Backend) GetAccount(sessionID string) (core.Account, error) {
	var m model.Account
	err := b.deps.DB.Where("session_id = ?", sessionID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Account{}, fmt.Errorf("account %s: %w", sessionID, storage.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return convert.AccountToCore(m), nil
}
