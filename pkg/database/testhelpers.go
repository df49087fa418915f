package database

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/agora/pkg/observability"
	"gorm.io/gorm"
)

// NewTestDB opens a private in-memory sqlite database with the given models migrated.
// The database is closed when the test finishes.
func NewTestDB(t testing.TB, models ...interface{}) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=on", name, uuid.NewString())

	db, err := Open(Config{Driver: DriverSQLite, URL: dsn}, observability.NewLogger(observability.WarnLevel, io.Discard))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	if len(models) > 0 {
		if err := Migrate(db, models...); err != nil {
			t.Fatalf("Failed to migrate test database: %v", err)
		}
	}
	return db
}

// SkipIfNoPostgres skips the test unless TEST_POSTGRES_URL is set and returns its value
func SkipIfNoPostgres(t testing.TB) string {
	t.Helper()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("Skipping test: TEST_POSTGRES_URL environment variable not set (database not available)")
	}
	return url
}
