// Package context provides internal context helpers for function execution.
//
// This package is internal and should not be imported directly.
// It carries the job descriptor and the runner logger into the target
// function's context.Context; pkg/jobctx is the public view of it.
package context
