// Package testutil provides shared test helpers for storage backends.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/almanac/internal/sqlstore"
	"github.com/starford/almanac/internal/storage"
)

// TestDB opens a SQLite backend in a temp dir, closed on cleanup.
func TestDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open(filepath.Join(t.TempDir(), "almanac-test.db"), "test-user")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a file backend.
func TestVault(t *testing.T) *storage.FS {
	t.Helper()
	vault, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return vault
}
