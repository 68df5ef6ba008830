package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens the run-history database for tests: PostgreSQL when
// TEST_DATABASE_URL is set, a fresh in-memory SQLite otherwise. Both go
// through Dialector and ConfigurePool like Open does.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open test db %s", stripQuery(dsn))

	if db.Dialector.Name() == "sqlite" {
		_, err = ConfigurePool(db)
		require.NoError(t, err)
		return db
	}
	_, err = ConfigurePool(db, WithMaxOpenConns(2))
	require.NoError(t, err)

	truncateRunHistory(db)
	t.Cleanup(func() {
		truncateRunHistory(db)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// truncateRunHistory isolates tests sharing one PostgreSQL database.
func truncateRunHistory(db *gorm.DB) {
	for _, tbl := range []string{"runs", "functions"} {
		db.Exec("DELETE FROM " + tbl)
	}
}

// newTestStorage returns a migrated storage on openTestDB.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}
