package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/protoflow/pkg/codec"
	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/diag"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/security"
	"github.com/jdziat/protoflow/pkg/transport"
)

// DefaultFunctionName is called when a request names no function.
const DefaultFunctionName = "handler"

// Environment variables passed to every runner.
const (
	EnvSocket  = "PROTOFLOW_SOCKET"
	EnvProfile = "PROTOFLOW_PROFILE"
	EnvFraming = "PROTOFLOW_FRAMING"
)

// Request names the function to call and its input.
type Request struct {
	ImportPath   string          `json:"import_path"`
	FunctionName string          `json:"function_name"`
	Input        json.RawMessage `json:"input"`
}

// Result is what the runner reported.
type Result struct {
	RunID       string
	Envelope    *core.ResultEnvelope
	ExitCode    int
	Diagnostics []diag.Record
	Attempts    int
	Duration    time.Duration
}

// Failed reports whether the function failed.
func (r *Result) Failed() bool {
	return r.Envelope.Failed()
}

// Caller spawns runner processes. It is safe for concurrent use; every call
// gets its own socket and process.
type Caller struct {
	config Config
	logger *slog.Logger
}

// New creates a caller.
func New(opts ...Option) *Caller {
	config := Config{
		Profile:       transport.ProfileSocket,
		Framing:       protocol.FramingJSON,
		AcceptTimeout: DefaultAcceptTimeout,
		Retry:         singleAttempt(),
	}
	for _, opt := range opts {
		opt.ApplyCaller(&config)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Caller{
		config: config,
		logger: logger,
	}
}

// Store returns the run store, or nil.
func (c *Caller) Store() core.RunStore {
	return c.config.Store
}

// Call runs one function in a fresh runner process.
func (c *Caller) Call(ctx context.Context, req Request) (*Result, error) {
	if req.FunctionName == "" {
		req.FunctionName = DefaultFunctionName
	}
	if err := security.ValidateImportPath(req.ImportPath); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if err := security.ValidateFunctionName(req.FunctionName); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if len(req.Input) == 0 {
		req.Input = json.RawMessage("null")
	}

	argv, err := c.command()
	if err != nil {
		return nil, err
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	run := &core.Run{
		ImportPath:   req.ImportPath,
		FunctionName: req.FunctionName,
		Profile:      string(c.config.Profile),
		Input:        req.Input,
		StartedAt:    start,
	}
	c.createRun(ctx, run)
	for _, fn := range c.config.onStart {
		fn(ctx, run)
	}

	var res *Result
	err = retry(ctx, c.config.Retry, func(attempt int) error {
		r, err := c.callOnce(ctx, argv, req)
		if err != nil {
			c.logger.Warn("call attempt failed",
				"run_id", run.ID,
				"function", run.FunctionName,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		r.Attempts = attempt
		res = r
		return nil
	}, func(attempt int, err error) {
		for _, fn := range c.config.onRetry {
			fn(ctx, run, attempt, err)
		}
	})

	if err != nil {
		exitCode := -1
		var callErr *CallError
		if errors.As(err, &callErr) {
			exitCode = callErr.ExitCode
		}
		c.finishRun(ctx, run.ID, func(ctx context.Context, s core.RunStore) error {
			return s.FailRun(ctx, run.ID, err.Error(), exitCode)
		})
		for _, fn := range c.config.onFail {
			fn(ctx, run, err)
		}
		return nil, err
	}

	res.RunID = run.ID
	res.Duration = time.Since(start)
	c.finishRun(ctx, run.ID, func(ctx context.Context, s core.RunStore) error {
		if res.Failed() {
			return s.FailRun(ctx, run.ID, res.Envelope.ErrorString(), res.ExitCode)
		}
		return s.CompleteRun(ctx, run.ID, res.Envelope.Result, res.ExitCode)
	})
	for _, fn := range c.config.onComplete {
		fn(ctx, run, res)
	}

	c.logger.Debug("call finished",
		"run_id", run.ID,
		"function", run.FunctionName,
		"exit_code", res.ExitCode,
		"failed", res.Failed(),
		"duration", res.Duration,
	)
	return res, nil
}

func (c *Caller) command() ([]string, error) {
	if len(c.config.Command) > 0 {
		return c.config.Command, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: locate executable: %w", err)
	}
	return []string{exe, "runtime"}, nil
}

// createRun records the run. History is best effort: a store failure is
// logged and the call goes ahead.
func (c *Caller) createRun(ctx context.Context, run *core.Run) {
	if c.config.Store == nil {
		run.ID = uuid.New().String()
		return
	}
	if err := c.config.Store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Error("failed to record run", "error", err)
		if run.ID == "" {
			run.ID = uuid.New().String()
		}
	}
}

func (c *Caller) finishRun(ctx context.Context, runID string, fn func(context.Context, core.RunStore) error) {
	if c.config.Store == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), c.config.Store); err != nil {
		c.logger.Error("failed to update run", "run_id", runID, "error", err)
	}
}

// callOnce performs one listen/spawn/exchange/wait cycle.
func (c *Caller) callOnce(ctx context.Context, argv []string, req Request) (*Result, error) {
	dir, err := os.MkdirTemp("", "protoflow")
	if err != nil {
		return nil, &CallError{Stage: StageListen, ExitCode: -1, Err: err}
	}
	defer os.RemoveAll(dir)

	sock := filepath.Join(dir, "server.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return nil, &CallError{Stage: StageListen, ExitCode: -1, Err: err}
	}
	defer ln.Close()

	stdinProfile := c.config.Profile == transport.ProfileStdin
	desc := &core.JobDescriptor{
		Input:        req.Input,
		ImportPath:   req.ImportPath,
		FunctionName: req.FunctionName,
	}
	if stdinProfile {
		desc.Socket = sock
	}
	payload, err := codec.EncodeDescriptor(desc)
	if err != nil {
		return nil, &CallError{Stage: StageSend, ExitCode: -1, Err: err}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), c.config.Env...)
	cmd.Env = append(cmd.Env,
		EnvProfile+"="+string(c.config.Profile),
		EnvFraming+"="+string(c.config.Framing),
	)
	if stdinProfile {
		cmd.Stdin = bytes.NewReader(payload)
	} else {
		cmd.Env = append(cmd.Env, EnvSocket+"="+sock)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &CallError{Stage: StageSpawn, ExitCode: -1, Err: err}
	}
	c.logger.Debug("runner started", "pid", cmd.Process.Pid, "socket", sock)

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	wait := func() int {
		<-exited
		return cmd.ProcessState.ExitCode()
	}
	fail := func(stage Stage, err error) (*Result, error) {
		_ = cmd.Process.Kill()
		code := wait()
		return nil, &CallError{Stage: stage, ExitCode: code, Stderr: stderr.String(), Err: err}
	}

	conn, err := c.accept(ctx, ln, exited)
	if err != nil {
		return fail(StageAccept, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.config.AcceptTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if !stdinProfile {
		if err := protocol.WriteMessage(conn, c.config.Framing, payload); err != nil {
			return fail(StageSend, err)
		}
	}
	body, err := protocol.ReadMessage(conn, c.config.Framing, security.MaxResponseSize)
	if err != nil {
		return fail(StageRecv, err)
	}
	_ = conn.Close()

	code := wait()
	env, err := codec.DecodeEnvelope(body)
	if err != nil {
		return nil, &CallError{Stage: StageDecode, ExitCode: code, Stderr: stderr.String(), Err: err}
	}

	return &Result{
		Envelope:    env,
		ExitCode:    code,
		Diagnostics: diag.ParseRecords(stderr.Bytes()),
	}, nil
}

// accept waits for the runner's one connection.
func (c *Caller) accept(ctx context.Context, ln net.Listener, exited <-chan struct{}) (net.Conn, error) {
	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- accepted{conn, err}
	}()

	timer := time.NewTimer(c.config.AcceptTimeout)
	defer timer.Stop()

	select {
	case a := <-ch:
		return a.conn, a.err
	case <-exited:
		// A runner that connected, wrote and exited may still be queued.
		if ul, ok := ln.(*net.UnixListener); ok {
			_ = ul.SetDeadline(time.Now().Add(100 * time.Millisecond))
		}
		a := <-ch
		if a.err != nil {
			return nil, ErrNoResponse
		}
		return a.conn, nil
	case <-timer.C:
		_ = ln.Close()
		return nil, fmt.Errorf("no connection within %s", c.config.AcceptTimeout)
	case <-ctx.Done():
		_ = ln.Close()
		return nil, ctx.Err()
	}
}
