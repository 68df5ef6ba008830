package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/core"
)

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgresDSN("postgresql://localhost/db?sslmode=disable"))
	assert.False(t, IsPostgresDSN("runs.db"))
	assert.False(t, IsPostgresDSN(":memory:"))
}

func TestDialector(t *testing.T) {
	assert.Equal(t, "postgres", Dialector("postgres://localhost/db").Name())
	assert.Equal(t, "sqlite", Dialector("runs.db").Name())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", sqliteDSN(":memory:"))
	assert.Equal(t, "runs.db?_busy_timeout=5000", sqliteDSN("runs.db"))
	assert.Equal(t, "runs.db?cache=shared&_busy_timeout=5000", sqliteDSN("runs.db?cache=shared"))
	assert.Equal(t, "runs.db?_busy_timeout=100", sqliteDSN("runs.db?_busy_timeout=100"))
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "runs.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.IsSQLite())
	_, err = os.Stat(path)
	require.NoError(t, err, "database file should exist")

	run := &core.Run{ImportPath: "library.echo", FunctionName: "echo"}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, got.Status)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL test")
	}

	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.IsSQLite(), "PostgreSQL connection should not be detected as SQLite")
}
