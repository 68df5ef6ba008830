package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/security"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// GormStorage implements core.RunStore using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.RunStore = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on the SQLite dialect.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Function{}, &core.Run{})
}

// SyncFunctions upserts catalog rows keyed by (import_path, function_name).
// Rows for functions no longer registered are left in place; other binaries
// may share the database.
func (s *GormStorage) SyncFunctions(ctx context.Context, fns []*core.Function) error {
	if len(fns) == 0 {
		return nil
	}
	for _, fn := range fns {
		if fn.ID == "" {
			fn.ID = uuid.New().String()
		}
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "import_path"}, {Name: "function_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"arg_type", "result_type", "has_context", "updated_at"}),
		}).
		Create(&fns).Error
}

// ListFunctions returns the catalog ordered by key.
func (s *GormStorage) ListFunctions(ctx context.Context) ([]*core.Function, error) {
	var fns []*core.Function
	err := s.db.WithContext(ctx).
		Order("import_path ASC, function_name ASC").
		Find(&fns).Error
	return fns, err
}

// CreateRun records a run as started.
func (s *GormStorage) CreateRun(ctx context.Context, run *core.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = core.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Input = security.TruncatePayload(run.Input)
	return s.db.WithContext(ctx).Create(run).Error
}

// CompleteRun marks a run as completed with the result the runner reported.
func (s *GormStorage) CompleteRun(ctx context.Context, runID string, result []byte, exitCode int) error {
	return s.finish(ctx, runID, map[string]any{
		"status":    core.RunCompleted,
		"result":    security.TruncatePayload(result),
		"exit_code": exitCode,
	})
}

// FailRun marks a run as failed.
// Error messages are sanitized before storage.
func (s *GormStorage) FailRun(ctx context.Context, runID string, errMsg string, exitCode int) error {
	return s.finish(ctx, runID, map[string]any{
		"status":    core.RunFailed,
		"error":     security.SanitizeErrorMessage(errMsg),
		"exit_code": exitCode,
	})
}

func (s *GormStorage) finish(ctx context.Context, runID string, updates map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run core.Run
		err := tx.Select("id", "started_at").First(&run, "id = ?", runID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.ErrRunNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now()
		updates["completed_at"] = now
		updates["duration_ms"] = now.Sub(run.StartedAt).Milliseconds()

		return tx.Model(&core.Run{}).Where("id = ?", runID).Updates(updates).Error
	})
}

// GetRun retrieves a run by ID.
func (s *GormStorage) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run core.Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs matching filter, newest first.
func (s *GormStorage) ListRuns(ctx context.Context, filter core.RunFilter) ([]*core.Run, error) {
	q := s.db.WithContext(ctx).Model(&core.Run{})

	if filter.ImportPath != "" {
		q = q.Where("import_path = ?", filter.ImportPath)
	}
	if filter.FunctionName != "" {
		q = q.Where("function_name = ?", filter.FunctionName)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var runs []*core.Run
	err := q.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// PurgeRuns deletes finished runs that completed before the cutoff.
func (s *GormStorage) PurgeRuns(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ?", []core.RunStatus{core.RunCompleted, core.RunFailed}).
		Where("completed_at < ?", before).
		Delete(&core.Run{})
	return result.RowsAffected, result.Error
}
