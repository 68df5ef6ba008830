package core

import (
	"context"
	"time"
)

// RunFilter narrows ListRuns results.
type RunFilter struct {
	ImportPath   string
	FunctionName string
	Status       RunStatus
	Limit        int
}

// RunStore defines the persistence layer for run history.
type RunStore interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Function catalog
	SyncFunctions(ctx context.Context, fns []*Function) error
	ListFunctions(ctx context.Context) ([]*Function, error)

	// Run lifecycle
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, runID string, result []byte, exitCode int) error
	FailRun(ctx context.Context, runID string, errMsg string, exitCode int) error

	// Queries
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Retention
	PurgeRuns(ctx context.Context, before time.Time) (int64, error)
}

// FunctionStats holds run counts for one function.
type FunctionStats struct {
	FunctionKey
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
