package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "snapshot.db"), Name: "snapshot"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestNew_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prices.db")
	db, err := New(Config{Path: path})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, "prices", db.Name())
	assert.Equal(t, path, db.Path())
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var count int
	err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('securities', 'daily_prices')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWithTransaction(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO securities (symbol, updated_at) VALUES ('AAA', 0)`)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO securities (symbol, updated_at) VALUES ('BBB', 0)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	assert.ErrorContains(t, err, "panic in transaction")

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM securities`).Scan(&count))
	assert.Equal(t, 1, count)

	assert.Error(t, WithTransaction(ctx, nil, func(*sql.Tx) error { return nil }))
}

func TestReadOnlyProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	writable, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, writable.Migrate(context.Background()))
	require.NoError(t, writable.Close())

	ro, err := New(Config{Path: path, Profile: ProfileReadOnly})
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.Conn().Exec(`INSERT INTO securities (symbol, updated_at) VALUES ('AAA', 0)`)
	assert.Error(t, err)
	assert.Error(t, ro.Migrate(context.Background()))
}

func TestBuildConnectionString(t *testing.T) {
	assert.Contains(t, buildConnectionString("/tmp/a.db", ProfileStandard), "/tmp/a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	assert.Contains(t, buildConnectionString("file:x?mode=memory", ProfileReadOnly), "file:x?mode=memory&_pragma=busy_timeout(5000)&_pragma=query_only(1)")
}
