package runner

import (
	"io"
	"log/slog"
	"time"

	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/security"
	"github.com/jdziat/protoflow/pkg/transport"
)

// Option configures a Runner.
type Option interface {
	ApplyRunner(*Config)
}

type runnerOptionFunc func(*Config)

func (f runnerOptionFunc) ApplyRunner(c *Config) { f(c) }

// Config holds runner configuration.
type Config struct {
	Transport transport.Config
	Logger    *slog.Logger

	// MaxResponseSize caps the encoded envelope. Results above it are
	// reported as invocation failures.
	MaxResponseSize int
}

// WithProfile selects the transport profile.
func WithProfile(p transport.Profile) Option {
	return runnerOptionFunc(func(c *Config) {
		c.Transport.Profile = p
	})
}

// WithSocket sets the socket profile locator (PROTOFLOW_SOCKET).
func WithSocket(path string) Option {
	return runnerOptionFunc(func(c *Config) {
		c.Transport.Socket = path
	})
}

// WithFraming sets the channel framing.
func WithFraming(f protocol.Framing) Option {
	return runnerOptionFunc(func(c *Config) {
		c.Transport.Framing = f
	})
}

// WithStdin sets the stdin profile source.
func WithStdin(r io.Reader) Option {
	return runnerOptionFunc(func(c *Config) {
		c.Transport.Stdin = r
	})
}

// WithIOTimeout bounds each channel read and write. It never bounds the
// function call itself.
func WithIOTimeout(d time.Duration) Option {
	return runnerOptionFunc(func(c *Config) {
		c.Transport.IOTimeout = d
	})
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return runnerOptionFunc(func(c *Config) {
		c.Logger = l
	})
}

// WithMaxResponseSize lowers the envelope size cap. Values outside
// (0, security.MaxResponseSize] keep the default.
func WithMaxResponseSize(n int) Option {
	return runnerOptionFunc(func(c *Config) {
		if n > 0 && n <= security.MaxResponseSize {
			c.MaxResponseSize = n
		}
	})
}
