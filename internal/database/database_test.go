package database

import (
	"path/filepath"
	"testing"

	"github.com/roverscan/rovermap/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     "5432",
		Username: "rover",
		Password: "secret",
		Database: "maps",
	})
	assert.Equal(t, "host=db port=5432 user=rover password=secret dbname=maps sslmode=disable", dsn)

	dsn = PostgresDSN(config.PostgresConfig{Host: "db", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}

func TestGetSqliteDB_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "maps.db")

	db, err := GetSqliteDB(path)
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode;").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	assert.FileExists(t, path)
}

func TestGetSqliteDB_Memory(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, db.Exec("CREATE TABLE t (x INTEGER)").Error)
	require.NoError(t, db.Exec("INSERT INTO t VALUES (1)").Error)
	var n int
	require.NoError(t, db.Raw("SELECT count(*) FROM t").Scan(&n).Error)
	assert.Equal(t, 1, n)
}

func TestManager_FallbackToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	m := NewManager(zerolog.Nop(), path)

	// nothing listens on port 1
	err := m.Connect(config.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "x",
		Password: "x",
		Database: "x",
	})
	require.NoError(t, err)

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	require.NotNil(t, m.SqlDB)
	assert.NoError(t, m.SqlDB.Ping())
	assert.NoError(t, m.SqlDB.Close())
}
