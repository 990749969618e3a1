// Package gormstorage implements the storage.Backend interface on a GORM
// database. The same backend serves SQLite and PostgreSQL; callers open the
// connection and hand it in.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roverscan/rovermap/internal/model"
	"github.com/roverscan/rovermap/internal/model/convert"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend stores maps as rows of the maps table.
type Backend struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

// New creates a new GORM storage backend.
func New(db *gorm.DB, log zerolog.Logger) *Backend {
	return &Backend{
		db:  db,
		log: log,
		now: time.Now,
	}
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		return fmt.Errorf("database not connected")
	}
	b.log.Info().Str("dialect", b.db.Dialector.Name()).Msg("Migrating schema")
	if err := b.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the map by name and records it as last used, in one
// transaction.
func (b *Backend) Save(ctx context.Context, name string, doc *session.Document) (string, error) {
	name, err := storage.ResolveName(name, b.now())
	if err != nil {
		return "", err
	}
	rec, err := convert.ToMapRecord(name, doc)
	if err != nil {
		return "", err
	}

	start := time.Now()
	err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "document", "track", "odometer",
				"scanned_cells", "resources", "obstacles", "size",
				"updated_at", "deleted_at",
			}),
		}).Create(&rec).Error
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&model.Setting{Key: model.LastUsedMapKey, Value: name}).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to save map %s: %w", name, err)
	}

	b.log.Debug().Str("name", name).Int64("bytes", rec.Size).Dur("duration", time.Since(start)).Msg("Map saved")
	return name, nil
}

// Load reads the named map.
func (b *Backend) Load(ctx context.Context, name string) (*session.Document, error) {
	name, err := storage.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	var rec model.MapRecord
	err = b.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load map %s: %w", name, err)
	}
	return convert.ToDocument(rec)
}

// List returns every stored map ordered by name, without the documents.
func (b *Backend) List(ctx context.Context) ([]storage.MapInfo, error) {
	var records []model.MapRecord
	err := b.db.WithContext(ctx).
		Select("name", "size", "updated_at").
		Order("name").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}

	maps := make([]storage.MapInfo, len(records))
	for i, rec := range records {
		maps[i] = convert.ToMapInfo(rec)
	}
	return maps, nil
}

// LastUsed returns the name stored under the last-used settings key.
func (b *Backend) LastUsed(ctx context.Context) (string, error) {
	var setting model.Setting
	err := b.db.WithContext(ctx).Where(&model.Setting{Key: model.LastUsedMapKey}).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && setting.Value == "") {
		return "", fmt.Errorf("%w: no map saved yet", session.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}
