// Package testutil provides throwaway SQLite databases for package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"librarydesk/pkg/database"
)

// NewDB opens a migrated database in a temp dir that is removed with the test.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db), "migrate")
	return db
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, username, email, first_name, last_name, password_hash)
		VALUES (?, ?, ?, ?, ?, 'x')
	`, id, username, username+"@example.com", username, "Tester")
	require.NoError(t, err, "create user %s", username)
	return id
}

// FixedClock is a settable clock for time-dependent rules.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
