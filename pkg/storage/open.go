package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// IsPostgresDSN reports whether dsn selects the PostgreSQL driver.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Dialector returns the GORM dialector for dsn. PostgreSQL URLs use the
// postgres driver; anything else is a SQLite file path.
func Dialector(dsn string) gorm.Dialector {
	if IsPostgresDSN(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(sqliteDSN(dsn))
}

// sqliteDSN adds a busy timeout so concurrent calls wait for the write lock
// instead of failing.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "_busy_timeout") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000"
}

// Open connects to dsn, configures the pool and migrates the schema.
func Open(ctx context.Context, dsn string, opts ...PoolOption) (*GormStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: empty dsn")
	}
	if !IsPostgresDSN(dsn) && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(stripQuery(dsn)), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create db dir: %w", err)
		}
	}

	db, err := gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	s := NewGormStorage(db)
	if _, err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func stripQuery(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}
