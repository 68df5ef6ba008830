package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the connection pool behind run history.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration // zero keeps connections forever
	ConnMaxIdleTime time.Duration // zero never closes idle connections
}

// PoolConfigFor returns the pool Open uses for a gorm dialector name.
// SQLite gets a single connection: it allows one writer, and a :memory:
// database exists per connection.
func PoolConfigFor(dialect string) PoolConfig {
	if dialect == "sqlite" {
		return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	}
	// Each call writes twice (create, finish); a small pool is plenty.
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// PoolOption overrides one pool setting.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// WithMaxOpenConns caps open connections. Idle connections are capped to match.
func WithMaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxOpenConns = n
		if c.MaxIdleConns > n {
			c.MaxIdleConns = n
		}
	})
}

// WithMaxIdleConns caps idle connections.
func WithMaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxIdleConns = n
	})
}

// WithConnLifetimes sets how long a connection may live and may sit idle.
func WithConnLifetimes(maxLifetime, maxIdle time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxLifetime = maxLifetime
		c.ConnMaxIdleTime = maxIdle
	})
}

// ConfigurePool sizes db's pool from its dialect defaults plus opts.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) (PoolConfig, error) {
	cfg := PoolConfigFor(db.Dialector.Name())
	for _, opt := range opts {
		opt.applyPool(&cfg)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return cfg, fmt.Errorf("storage: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return cfg, nil
}
