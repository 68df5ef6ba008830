// Package jobctx provides public access to run context for target functions.
package jobctx

import (
	"context"
	"log/slog"

	"github.com/jdziat/protoflow/pkg/core"
	intctx "github.com/jdziat/protoflow/pkg/internal/context"
)

// DescriptorFromContext returns the job being run, or nil outside a runner.
func DescriptorFromContext(ctx context.Context) *core.JobDescriptor {
	rc := intctx.GetRunContext(ctx)
	if rc == nil {
		return nil
	}
	return rc.Descriptor
}

// FunctionKeyFromContext returns the key of the running function.
func FunctionKeyFromContext(ctx context.Context) (core.FunctionKey, bool) {
	desc := DescriptorFromContext(ctx)
	if desc == nil {
		return core.FunctionKey{}, false
	}
	return desc.Key(), true
}

// ProfileFromContext returns the runner's transport profile, or "" outside a runner.
func ProfileFromContext(ctx context.Context) string {
	rc := intctx.GetRunContext(ctx)
	if rc == nil {
		return ""
	}
	return rc.Profile
}

// Logger returns a logger writing diagnostic records on the runner's stderr,
// tagged with the running function. Outside a runner it returns slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	rc := intctx.GetRunContext(ctx)
	if rc == nil || rc.Logger == nil {
		return slog.Default()
	}
	if rc.Descriptor == nil {
		return rc.Logger
	}
	return rc.Logger.With("function", rc.Descriptor.Key().String())
}
