package main

import (
	"fmt"

	"github.com/roverscan/rovermap/internal/config"
	"github.com/roverscan/rovermap/internal/database"
	"github.com/roverscan/rovermap/internal/storage"
	filestore "github.com/roverscan/rovermap/internal/storage/file"
	gormstorage "github.com/roverscan/rovermap/internal/storage/gorm"
	"github.com/rs/zerolog"
)

func createStorageBackend(storageCfg config.StorageConfig, log zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		mgr := database.NewManager(log, storageCfg.SQLite.Path)
		if err := mgr.Connect(storageCfg.Postgres); err != nil {
			return nil, fmt.Errorf("failed to connect map database: %w", err)
		}
		if mgr.ShouldSaveLocal {
			Logger.Warn("Postgres unreachable, maps are stored in SQLite", "path", storageCfg.SQLite.Path)
		} else {
			Logger.Info("Postgres storage backend initialized", "host", storageCfg.Postgres.Host)
		}
		return gormstorage.New(mgr.DB, log), nil

	case "sqlite":
		db, err := database.GetSqliteDB(storageCfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return gormstorage.New(db, log), nil

	case "file", "":
		Logger.Info("File storage backend initialized", "dir", storageCfg.File.Dir)
		return filestore.New(filestore.Config{
			Dir:            storageCfg.File.Dir,
			CompressOutput: storageCfg.File.CompressOutput,
		}, log), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
