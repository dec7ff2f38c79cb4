package main

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/ridemap/ridemap/internal/config"
	"github.com/ridemap/ridemap/internal/database"
	"github.com/ridemap/ridemap/internal/storage"
	gormstorage "github.com/ridemap/ridemap/internal/storage/gorm"
	"github.com/ridemap/ridemap/internal/storage/memory"
	sqlitestorage "github.com/ridemap/ridemap/internal/storage/sqlite"
)

// postgresBackend owns the database manager behind a GORM backend so that
// closing the store also dumps a SQLite fallback and releases the pool.
type postgresBackend struct {
	*gormstorage.Backend
	mgr *database.Manager
}

func (b *postgresBackend) Close() error {
	if b.mgr.ShouldSaveLocal && b.mgr.SqliteFilePath != "" {
		if err := b.mgr.DumpMemoryToDisk(); err != nil {
			b.mgr.Logger.Error().Err(err).Msg("Failed to dump fallback database")
		}
	}
	return b.mgr.Close()
}

func createStorageBackend(cfg config.StorageConfig, logger *slog.Logger, zl zerolog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "postgres":
		dbc := config.GetDatabaseConfig()
		mgr := database.NewManager(database.PostgresConfig{
			Host:     dbc.Host,
			Port:     dbc.Port,
			Username: dbc.Username,
			Password: dbc.Password,
			Database: dbc.Database,
		}, zl.With().Str("component", "database").Logger())
		if err := mgr.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if mgr.ShouldSaveLocal {
			mgr.SqliteFilePath = cfg.SQLite.DumpPath
		}
		logger.Info("Postgres storage backend initialized", "local", mgr.ShouldSaveLocal)
		return &postgresBackend{
			Backend: gormstorage.New(gormstorage.Dependencies{DB: mgr.DB, Logger: logger}),
			mgr:     mgr,
		}, nil

	case "sqlite":
		backend, err := sqlitestorage.New(cfg.SQLite, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", cfg.SQLite.DumpPath)
		return backend, nil

	case "memory", "":
		logger.Info("Memory storage backend initialized", "outputDir", cfg.Memory.OutputDir)
		return memory.New(cfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func openStorage(cfg config.StorageConfig, logger *slog.Logger, zl zerolog.Logger) (storage.Backend, error) {
	backend, err := createStorageBackend(cfg, logger, zl)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return backend, nil
}
