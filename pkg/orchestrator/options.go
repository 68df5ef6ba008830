package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/security"
	"github.com/jdziat/protoflow/pkg/transport"
)

// DefaultAcceptTimeout bounds the wait for the runner to connect, and the
// exchange on the connection once it has.
const DefaultAcceptTimeout = 10 * time.Minute

// Option configures a Caller.
type Option interface {
	ApplyCaller(*Config)
}

type callerOptionFunc func(*Config)

func (f callerOptionFunc) ApplyCaller(c *Config) { f(c) }

// Config holds caller configuration.
type Config struct {
	// Command is the runner argv. Default: this executable with "runtime".
	Command []string
	// Env is appended to the parent environment for each runner.
	Env []string

	Profile transport.Profile
	Framing protocol.Framing

	AcceptTimeout time.Duration
	// Timeout bounds a whole call. Zero means no limit.
	Timeout time.Duration

	// Retry applies to orchestration failures only; it is off (one attempt)
	// unless WithRetry or WithRetryAttempts is given.
	Retry RetryPolicy

	Store  core.RunStore
	Logger *slog.Logger

	onStart    []func(context.Context, *core.Run)
	onComplete []func(context.Context, *core.Run, *Result)
	onFail     []func(context.Context, *core.Run, error)
	onRetry    []func(context.Context, *core.Run, int, error)
}

// WithCommand sets the runner argv.
func WithCommand(argv ...string) Option {
	return callerOptionFunc(func(c *Config) {
		c.Command = append([]string(nil), argv...)
	})
}

// WithEnv adds KEY=VALUE pairs to every runner's environment.
func WithEnv(kv ...string) Option {
	return callerOptionFunc(func(c *Config) {
		c.Env = append(c.Env, kv...)
	})
}

// WithProfile selects how the descriptor reaches the runner.
func WithProfile(p transport.Profile) Option {
	return callerOptionFunc(func(c *Config) {
		c.Profile = p
	})
}

// WithFraming sets the socket framing.
func WithFraming(f protocol.Framing) Option {
	return callerOptionFunc(func(c *Config) {
		c.Framing = f
	})
}

// WithAcceptTimeout sets how long to wait for the runner to connect.
func WithAcceptTimeout(d time.Duration) Option {
	return callerOptionFunc(func(c *Config) {
		if d > 0 {
			c.AcceptTimeout = d
		}
	})
}

// WithTimeout bounds each call, function execution included.
func WithTimeout(d time.Duration) Option {
	return callerOptionFunc(func(c *Config) {
		c.Timeout = d
	})
}

// WithRetry sets the retry policy for orchestration failures.
func WithRetry(p RetryPolicy) Option {
	return callerOptionFunc(func(c *Config) {
		p.Attempts = security.ClampRetries(p.Attempts)
		c.Retry = p
	})
}

// WithRetryAttempts enables retries with default backoff.
// Values are clamped to [1, MaxRetries].
func WithRetryAttempts(n int) Option {
	return callerOptionFunc(func(c *Config) {
		p := DefaultRetryPolicy()
		p.Attempts = security.ClampRetries(n)
		c.Retry = p
	})
}

// WithStore records every call in run history.
func WithStore(s core.RunStore) Option {
	return callerOptionFunc(func(c *Config) {
		c.Store = s
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return callerOptionFunc(func(c *Config) {
		c.Logger = l
	})
}

// OnRunStart registers a hook called before the first attempt.
func OnRunStart(fn func(context.Context, *core.Run)) Option {
	return callerOptionFunc(func(c *Config) {
		c.onStart = append(c.onStart, fn)
	})
}

// OnRunComplete registers a hook called when the runner reported, whether the
// function succeeded or not.
func OnRunComplete(fn func(context.Context, *core.Run, *Result)) Option {
	return callerOptionFunc(func(c *Config) {
		c.onComplete = append(c.onComplete, fn)
	})
}

// OnRunFail registers a hook called when orchestration failed for good.
func OnRunFail(fn func(context.Context, *core.Run, error)) Option {
	return callerOptionFunc(func(c *Config) {
		c.onFail = append(c.onFail, fn)
	})
}

// OnRetry registers a hook called before each retry.
func OnRetry(fn func(ctx context.Context, run *core.Run, attempt int, err error)) Option {
	return callerOptionFunc(func(c *Config) {
		c.onRetry = append(c.onRetry, fn)
	})
}
