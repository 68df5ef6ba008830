// Package protoflow runs registered Go functions in one-shot runner
// processes that an orchestrator drives over a unix socket.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Register a function (usually in an init func of the unit's package)
//	protoflow.MustRegister("billing.invoice", "handler", func(ctx context.Context, in Order) (*Invoice, error) {
//	    return render(ctx, in)
//	})
//
//	// In the runner binary
//	os.Exit(protoflow.NewRunner().Run(ctx))
//
//	// In the orchestrator
//	caller := protoflow.NewCaller(protoflow.WithCommand("/usr/local/bin/app", "runtime"))
//	res, err := caller.Call(ctx, protoflow.Request{ImportPath: "billing.invoice", Input: input})
package protoflow

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/orchestrator"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/runner"
	"github.com/jdziat/protoflow/pkg/schedule"
	"github.com/jdziat/protoflow/pkg/security"
	"github.com/jdziat/protoflow/pkg/storage"
	"github.com/jdziat/protoflow/pkg/transport"
)

type (
	// JobDescriptor is the request a runner receives.
	JobDescriptor = core.JobDescriptor

	// ResultEnvelope is the response a runner writes back.
	ResultEnvelope = core.ResultEnvelope

	// FunctionKey addresses a registered function.
	FunctionKey = core.FunctionKey

	// ErrorKind names a runner failure category.
	ErrorKind = core.ErrorKind

	ConfigurationError = core.ConfigurationError
	DecodeError        = core.DecodeError
	ResolutionError    = core.ResolutionError
	InvocationError    = core.InvocationError

	// Run is one recorded invocation.
	Run = core.Run

	// RunStore persists run history.
	RunStore = core.RunStore

	// Registry maps import paths and function names to functions.
	Registry = registry.Registry

	// Runner executes one job per process.
	Runner = runner.Runner

	// RunnerOption configures a Runner.
	RunnerOption = runner.Option

	// Caller spawns runners and collects their results.
	Caller = orchestrator.Caller

	// CallerOption configures a Caller.
	CallerOption = orchestrator.Option

	// Request names the function to call and its input.
	Request = orchestrator.Request

	// Result is what a runner reported.
	Result = orchestrator.Result

	// Profile selects how a runner reaches its orchestrator.
	Profile = transport.Profile

	// Schedule defines when a recurring call runs next.
	Schedule = schedule.Schedule

	// Scheduler makes recurring calls.
	Scheduler = schedule.Scheduler

	// GormStorage implements RunStore using GORM.
	GormStorage = storage.GormStorage
)

// Transport profiles
const (
	ProfileSocket = transport.ProfileSocket
	ProfileStdin  = transport.ProfileStdin
)

// Error kinds
const (
	KindConfiguration = core.KindConfiguration
	KindDecode        = core.KindDecode
	KindResolution    = core.KindResolution
	KindInvocation    = core.KindInvocation
)

// Runner exit codes
const (
	ExitSuccess = runner.ExitSuccess
	ExitFailure = runner.ExitFailure
)

// Security limits
const (
	MaxNameLength         = security.MaxNameLength
	MaxRequestSize        = security.MaxRequestSize
	MaxResponseSize       = security.MaxResponseSize
	MaxRetries            = security.MaxRetries
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrMissingSocket = core.ErrMissingSocket
	ErrUnknownUnit   = core.ErrUnknownUnit
	ErrUnknownSymbol = core.ErrUnknownSymbol
	ErrDuplicateFunc = core.ErrDuplicateFunc
	ErrRunNotFound   = core.ErrRunNotFound
	ErrNoResponse    = orchestrator.ErrNoResponse
)

// Register adds fn to the default registry.
func Register(importPath, functionName string, fn any) error {
	return registry.Register(importPath, functionName, fn)
}

// MustRegister is Register that panics on error.
func MustRegister(importPath, functionName string, fn any) {
	registry.MustRegister(importPath, functionName, fn)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return registry.New()
}

// NewRunner creates a runner over the default registry.
func NewRunner(opts ...RunnerOption) *Runner {
	return runner.New(registry.Default, opts...)
}

// NewCaller creates an orchestrator caller.
func NewCaller(opts ...CallerOption) *Caller {
	return orchestrator.New(opts...)
}

// NewScheduler creates a scheduler that makes its calls through caller.
func NewScheduler(caller schedule.Caller, opts ...schedule.Option) *Scheduler {
	return schedule.New(caller, opts...)
}

// NewGormStorage creates a GORM-backed run store.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// OpenStorage opens and migrates run history at dsn (a sqlite path or postgres URL).
func OpenStorage(ctx context.Context, dsn string) (*GormStorage, error) {
	return storage.Open(ctx, dsn)
}

// KindOf classifies err into the runner taxonomy.
func KindOf(err error) ErrorKind {
	return core.KindOf(err)
}

// Runner option functions

// WithSocket sets the socket path of the socket profile.
func WithSocket(path string) RunnerOption {
	return runner.WithSocket(path)
}

// WithRunnerProfile sets the runner's transport profile.
func WithRunnerProfile(p Profile) RunnerOption {
	return runner.WithProfile(p)
}

// Caller option functions

// WithCommand sets the runner argv.
func WithCommand(argv ...string) CallerOption {
	return orchestrator.WithCommand(argv...)
}

// WithProfile sets the transport profile runners are spawned with.
func WithProfile(p Profile) CallerOption {
	return orchestrator.WithProfile(p)
}

// WithTimeout bounds a whole call.
func WithTimeout(d time.Duration) CallerOption {
	return orchestrator.WithTimeout(d)
}

// WithStore records runs in s.
func WithStore(s RunStore) CallerOption {
	return orchestrator.WithStore(s)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}
