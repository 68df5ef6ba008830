// Package server exposes the orchestrator over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/registry"
)

// Option configures the HTTP handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	registry   *registry.Registry
	store      core.RunStore
	logger     *slog.Logger
	rateLimit  float64
	burst      int
	middleware func(http.Handler) http.Handler
}

// WithRegistry serves the function catalog from reg. Default: registry.Default.
func WithRegistry(reg *registry.Registry) Option {
	return optionFunc(func(c *config) {
		c.registry = reg
	})
}

// WithStore enables the run history endpoints.
func WithStore(s core.RunStore) Option {
	return optionFunc(func(c *config) {
		c.store = s
	})
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		c.logger = l
	})
}

// WithRateLimit limits requests to r per second with the given burst.
// A non-positive r disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return optionFunc(func(c *config) {
		c.rateLimit = r
		c.burst = burst
	})
}

// WithMiddleware wraps the handler with middleware (auth, etc.).
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		c.middleware = mw
	})
}
