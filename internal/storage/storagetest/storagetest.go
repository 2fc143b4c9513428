// Package storagetest opens migrated in-memory databases for tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/storage"
)

// NewDB returns a migrated in-memory SQLite database closed with the test.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := storage.Connect(context.Background(), config.DBConfig{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func New(t *testing.T) *storage.SQLStorage {
	t.Helper()
	return storage.NewSQLStorage(NewDB(t))
}
