package database

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"size:64;not null"`
}

func discardLogger() *observability.Logger {
	return observability.NewLogger(observability.WarnLevel, io.Discard)
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(Config{Driver: DriverSQLite, URL: "file:open_sqlite?mode=memory&cache=shared"}, discardLogger())
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db, &widget{}))
	require.NoError(t, db.Create(&widget{Name: "gear"}).Error)

	var got widget
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "gear", got.Name)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql", URL: "root@/agora"}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported database driver "mysql"`)
}

func TestOpen_PostgresUnreachable(t *testing.T) {
	cfg := Config{
		Driver: DriverPostgres,
		URL:    "postgres://agora@127.0.0.1:1/agora?sslmode=disable&connect_timeout=1",
	}
	_, err := Open(cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping postgres database")
}

func TestClose(t *testing.T) {
	db := NewTestDB(t)
	require.NoError(t, Close(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping())
}

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := logWriter{log: observability.NewLogger(observability.WarnLevel, &buf)}
	w.Printf("slow query %s took %s", "SELECT 1", 300*time.Millisecond)
	assert.Contains(t, buf.String(), "slow query SELECT 1 took 300ms")
}
