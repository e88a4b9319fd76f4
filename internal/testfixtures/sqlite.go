package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/saturday/internal/persistence/sqldb"
)

// NewSQLiteStorage opens a migrated SQLite database in a temporary directory. It is closed
// when the test finishes.
func NewSQLiteStorage(tb testing.TB) *sqldb.Storage {
	tb.Helper()

	dsn := "file:" + filepath.Join(tb.TempDir(), "saturday.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	storage, err := sqldb.OpenStorage(context.Background(), dsn)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background(), nil); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return storage
}
