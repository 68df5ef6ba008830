// Package transport acquires the runner's channel to the orchestrator.
//
// Two profiles share one Channel interface:
//
//   - ProfileSocket: dial the unix socket named by PROTOFLOW_SOCKET; the
//     request and the response travel over the same connection.
//   - ProfileStdin: the request is the whole of standard input; the response
//     is written to the unix socket named by the request's "socket" field.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/security"
)

// Profile selects how the runner reaches its orchestrator.
type Profile string

const (
	ProfileSocket Profile = "socket"
	ProfileStdin  Profile = "stdin"
)

// ParseProfile maps a configuration value to a Profile. Empty means ProfileSocket.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case "", ProfileSocket:
		return ProfileSocket, nil
	case ProfileStdin:
		return ProfileStdin, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownProfile, s)
}

// Channel is a single request/response exchange with the orchestrator.
type Channel interface {
	// ReadRequest reads the one request body.
	ReadRequest(ctx context.Context) ([]byte, error)
	// WriteResponse writes the one response body. desc may be partial or nil
	// when decoding failed; the stdin profile needs its Socket to respond.
	WriteResponse(ctx context.Context, desc *core.JobDescriptor, body []byte) error
	// Close releases the channel. Safe to call more than once.
	Close() error
}

// Config holds channel settings.
type Config struct {
	Profile Profile
	Socket  string // socket profile locator
	Framing protocol.Framing
	Stdin   io.Reader // stdin profile source, default os.Stdin

	// IOTimeout bounds each read and write. Zero means no deadline.
	IOTimeout time.Duration
}

// Open acquires the channel described by cfg.
// Acquisition failures are returned as *core.ConfigurationError.
func Open(ctx context.Context, cfg Config) (Channel, error) {
	if _, err := protocol.ParseFraming(string(cfg.Framing)); err != nil {
		return nil, core.Configuration(err)
	}

	switch cfg.Profile {
	case ProfileSocket, "":
		if cfg.Socket == "" {
			return nil, core.Configuration(core.ErrMissingSocket)
		}
		conn, err := dial(ctx, cfg.Socket)
		if err != nil {
			return nil, core.Configuration(err)
		}
		return &socketChannel{conn: conn, framing: cfg.Framing, timeout: cfg.IOTimeout}, nil

	case ProfileStdin:
		stdin := cfg.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return &stdinChannel{stdin: stdin, framing: cfg.Framing, timeout: cfg.IOTimeout}, nil
	}
	return nil, core.Configuration(fmt.Errorf("%w: %q", core.ErrUnknownProfile, cfg.Profile))
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return conn, nil
}

// withDeadline applies timeout to conn and aborts blocked I/O when ctx ends.
// The returned func must be called when the operation finishes.
func withDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) func() {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return func() { stop() }
}

// writeAndHalfClose writes a framed body then signals EOF so peers that read
// until the stream ends see the full response.
func writeAndHalfClose(conn net.Conn, framing protocol.Framing, body []byte) error {
	if err := protocol.WriteMessage(conn, framing, body); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}
	return nil
}

type socketChannel struct {
	conn    net.Conn
	framing protocol.Framing
	timeout time.Duration
}

func (c *socketChannel) ReadRequest(ctx context.Context) ([]byte, error) {
	done := withDeadline(ctx, c.conn, c.timeout)
	defer done()

	body, err := protocol.ReadMessage(c.conn, c.framing, security.MaxRequestSize)
	if err != nil {
		return nil, core.Decode(err)
	}
	return body, nil
}

func (c *socketChannel) WriteResponse(ctx context.Context, _ *core.JobDescriptor, body []byte) error {
	done := withDeadline(ctx, c.conn, c.timeout)
	defer done()
	return writeAndHalfClose(c.conn, c.framing, body)
}

func (c *socketChannel) Close() error {
	return c.conn.Close()
}

type stdinChannel struct {
	stdin   io.Reader
	framing protocol.Framing
	timeout time.Duration
}

func (c *stdinChannel) ReadRequest(_ context.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.stdin, security.MaxRequestSize+1))
	if err != nil {
		return nil, core.Decode(fmt.Errorf("read stdin: %w", err))
	}
	if len(body) > security.MaxRequestSize {
		return nil, core.Decode(fmt.Errorf("%w: more than %d bytes", core.ErrRequestTooLarge, security.MaxRequestSize))
	}
	return body, nil
}

func (c *stdinChannel) WriteResponse(ctx context.Context, desc *core.JobDescriptor, body []byte) error {
	if desc == nil || desc.Socket == "" {
		return core.Configuration(core.ErrNoResponseChan)
	}

	conn, err := dial(ctx, desc.Socket)
	if err != nil {
		return core.Configuration(err)
	}
	defer conn.Close()

	done := withDeadline(ctx, conn, c.timeout)
	defer done()
	return writeAndHalfClose(conn, c.framing, body)
}

func (c *stdinChannel) Close() error {
	return nil
}
