// Package context provides context helpers for the runner.
package context

import (
	"context"
	"log/slog"

	"github.com/jdziat/protoflow/pkg/core"
)

// RunContextKey is the key for storing run context in context.Context.
type RunContextKey struct{}

// RunContext holds the job being executed and the runner's logger.
type RunContext struct {
	Descriptor *core.JobDescriptor
	Profile    string
	Logger     *slog.Logger
}

// GetRunContext retrieves the run context from a context.Context.
func GetRunContext(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(RunContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}

// WithRunContext adds run context to a context.Context.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, RunContextKey{}, rc)
}
