package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jdziat/protoflow/pkg/codec"
	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/diag"
	intctx "github.com/jdziat/protoflow/pkg/internal/context"
	"github.com/jdziat/protoflow/pkg/internal/handler"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/security"
	"github.com/jdziat/protoflow/pkg/transport"
)

// Exit codes. The host maps ExitFailure to its abnormal status (255 on Unix).
const (
	ExitSuccess = 0
	ExitFailure = -1
)

// Runner executes one job per Run.
type Runner struct {
	registry *registry.Registry
	config   Config
	logger   *slog.Logger
}

// New creates a runner resolving functions in reg.
func New(reg *registry.Registry, opts ...Option) *Runner {
	config := Config{
		Transport: transport.Config{
			Profile: transport.ProfileSocket,
			Framing: protocol.FramingJSON,
		},
		MaxResponseSize: security.MaxResponseSize,
	}
	for _, opt := range opts {
		opt.ApplyRunner(&config)
	}
	if reg == nil {
		reg = registry.Default
	}

	logger := config.Logger
	if logger == nil {
		logger = diag.New(os.Stderr, slog.LevelInfo)
	}

	return &Runner{
		registry: reg,
		config:   config,
		logger:   logger,
	}
}

// Run handles one job and returns the process exit code.
func (r *Runner) Run(ctx context.Context) int {
	ch, err := transport.Open(ctx, r.config.Transport)
	if err != nil {
		// No channel, no response: the record and the exit code are all we have.
		r.logger.Error(acquireFailureMsg(err), "error", err)
		return ExitFailure
	}
	defer ch.Close()

	desc, result, err := r.execute(ctx, ch)

	var data []byte
	if err == nil {
		data, err = r.encodeResult(desc, result)
	}
	if err != nil {
		trace := core.FormatTrace(err)
		r.logger.Error("Error running function",
			"kind", string(core.KindOf(err)),
			"error", err,
			"traceback", trace,
		)
		data, _ = codec.EncodeEnvelope(core.Failure(trace))
	}

	if writeErr := ch.WriteResponse(ctx, desc, data); writeErr != nil {
		// A missing response channel was already reported as the run's failure.
		if err == nil || !errors.Is(writeErr, core.ErrNoResponseChan) {
			r.logger.Error("Error writing result", "error", writeErr)
		}
		return ExitFailure
	}

	if err != nil {
		return ExitFailure
	}
	return ExitSuccess
}

// execute runs Decode → Resolve → Invoke against an acquired channel.
// desc may be partial when decoding failed.
func (r *Runner) execute(ctx context.Context, ch transport.Channel) (*core.JobDescriptor, json.RawMessage, error) {
	body, err := ch.ReadRequest(ctx)
	if err != nil {
		return nil, nil, err
	}

	desc, err := codec.DecodeDescriptor(body, r.config.Transport.Profile == transport.ProfileStdin)
	if err != nil {
		return desc, nil, err
	}
	r.logger.Debug("received data",
		"import_path", desc.ImportPath,
		"function_name", desc.FunctionName,
		"input_bytes", len(desc.Input),
	)

	result, err := r.Invoke(ctx, desc)
	return desc, result, err
}

// Invoke resolves and calls the function desc names. Errors are
// *core.ResolutionError or *core.InvocationError.
func (r *Runner) Invoke(ctx context.Context, desc *core.JobDescriptor) (json.RawMessage, error) {
	h, err := r.registry.Resolve(desc.ImportPath, desc.FunctionName)
	if err != nil {
		return nil, err
	}

	ctx = intctx.WithRunContext(ctx, &intctx.RunContext{
		Descriptor: desc,
		Profile:    string(r.config.Transport.Profile),
		Logger:     r.logger,
	})
	result, err := h.Execute(ctx, desc.Input)
	if err != nil {
		invErr := &core.InvocationError{Key: desc.Key(), Err: err}
		var panicErr *handler.PanicError
		if errors.As(err, &panicErr) {
			invErr.Stack = panicErr.Stack
		}
		return nil, invErr
	}
	return result, nil
}

// encodeResult builds the success envelope. A result that cannot be encoded
// or does not fit the response limit becomes an invocation failure.
func (r *Runner) encodeResult(desc *core.JobDescriptor, result json.RawMessage) ([]byte, error) {
	data, err := codec.EncodeEnvelope(core.Success(result))
	if err != nil {
		return nil, &core.InvocationError{Key: keyOf(desc), Err: err}
	}
	if len(data) > r.config.MaxResponseSize {
		return nil, &core.InvocationError{
			Key: keyOf(desc),
			Err: fmt.Errorf("%w: %d > %d bytes", core.ErrResultTooLarge, len(data), r.config.MaxResponseSize),
		}
	}
	return data, nil
}

func keyOf(desc *core.JobDescriptor) core.FunctionKey {
	if desc == nil {
		return core.FunctionKey{}
	}
	return desc.Key()
}

func acquireFailureMsg(err error) string {
	if errors.Is(err, core.ErrMissingSocket) {
		return "PROTOFLOW_SOCKET not set"
	}
	return "Error acquiring channel"
}
