package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/membership"
	"librarydesk/pkg/database"
)

func run(t *testing.T, dbPath string, args ...string) error {
	t.Helper()
	a := &app{password: func(string) (string, error) { return "correct horse", nil }}
	t.Cleanup(func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	})

	root := a.rootCmd()
	root.SetArgs(append([]string{"--db", dbPath}, args...))
	return root.ExecuteContext(context.Background())
}

func countUsers(t *testing.T, dbPath string) int {
	t.Helper()
	db, err := database.Open(database.Config{Path: dbPath})
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

func TestMemberAdd_BadNumberWritesNothing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	err := run(t, dbPath, "member", "add", "grace", "--email", "grace@example.com", "--number", "ab-12")
	require.Error(t, err)
	assert.Equal(t, 0, countUsers(t, dbPath))

	require.NoError(t, run(t, dbPath, "member", "add", "grace", "--email", "grace@example.com", "--number", "ab12"))
	assert.Equal(t, 1, countUsers(t, dbPath))

	db, err := database.Open(database.Config{Path: dbPath})
	require.NoError(t, err)
	defer db.Close()
	m, err := membership.NewRepo(db).GetByNumber(context.Background(), "AB12")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "regular", m.MembershipStatus)
}

func TestMemberAdd_DuplicateNumberWritesNothing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	require.NoError(t, run(t, dbPath, "member", "add", "ada", "--email", "ada@example.com", "--number", "LIB1"))
	err := run(t, dbPath, "member", "add", "grace", "--email", "grace@example.com", "--number", "lib1")
	assert.ErrorIs(t, err, membership.ErrDuplicate)
	assert.Equal(t, 1, countUsers(t, dbPath))
}

func TestMemberAdd_ShortPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	a := &app{password: func(string) (string, error) { return "short", nil }}
	root := a.rootCmd()
	root.SetArgs([]string{"--db", dbPath, "member", "add", "lin", "--email", "lin@example.com"})

	err := root.ExecuteContext(context.Background())
	if a.db != nil {
		_ = a.db.Close()
	}
	require.Error(t, err)
	assert.Equal(t, 0, countUsers(t, dbPath))
}
