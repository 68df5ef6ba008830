// Package storage keeps orchestrator run history.
//
// This package includes:
//   - GormStorage: a GORM-based core.RunStore supporting SQLite and PostgreSQL
//   - Open: picks the driver from a DSN and configures the connection pool
//
// The runner itself never touches storage; only the orchestrator records runs.
package storage
