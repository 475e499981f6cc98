package migrations_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/storage/sqlite/migrations"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count > 0
}

func TestApplyAndRevert(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db := openDB(t)

	version, err := migrations.Apply(ctx, db, log.Noop)
	require.NoError(err)
	assert.Equal(uint(2), version)
	for _, table := range []string{"topics", "tasks", "files", "locks"} {
		assert.True(tableExists(t, db, table), table)
	}

	// Applying again is a no-op.
	version, err = migrations.Apply(ctx, db, nil)
	require.NoError(err)
	assert.Equal(uint(2), version)

	require.NoError(migrations.Revert(ctx, db, log.Noop))
	for _, table := range []string{"topics", "tasks", "files", "locks"} {
		assert.False(tableExists(t, db, table), table)
	}
}

func TestApplyErrors(t *testing.T) {
	tests := map[string]struct {
		db  func(t *testing.T) *sql.DB
		ctx func() context.Context
	}{
		"A missing database should fail.": {
			db:  func(t *testing.T) *sql.DB { return nil },
			ctx: context.Background,
		},

		"A cancelled context should fail.": {
			db: openDB,
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := migrations.Apply(test.ctx(), test.db(t), log.Noop)
			assert.Error(t, err)
		})
	}
}
