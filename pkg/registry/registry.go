package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/internal/handler"
	"github.com/jdziat/protoflow/pkg/security"
)

// Registry maps (unit, function) pairs to invocable handlers.
type Registry struct {
	units map[string]map[string]*handler.Handler
	mu    sync.RWMutex
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{units: make(map[string]map[string]*handler.Handler)}
}

// Default is the process-wide registry populated by init-time registration.
var Default = New()

// Option modifies registration.
type Option interface {
	Apply(*Options)
}

// Options holds registration settings.
type Options struct {
	Replace bool
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Replace allows a registration to overwrite an existing function.
func Replace() Option {
	return optionFunc(func(o *Options) {
		o.Replace = true
	})
}

// Register adds fn under importPath/functionName.
// The function must have signature: func([ctx context.Context,] input T) error
// or func([ctx context.Context,] input T) (R, error).
func (r *Registry) Register(importPath, functionName string, fn any, opts ...Option) error {
	if err := security.ValidateImportPath(importPath); err != nil {
		return err
	}
	if err := security.ValidateFunctionName(functionName); err != nil {
		return err
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", core.ErrFunctionRejected, importPath, functionName, err)
	}

	o := &Options{}
	for _, opt := range opts {
		opt.Apply(o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[importPath]
	if !ok {
		unit = make(map[string]*handler.Handler)
		r.units[importPath] = unit
	}
	if _, exists := unit[functionName]; exists && !o.Replace {
		return fmt.Errorf("%w: %s.%s", core.ErrDuplicateFunc, importPath, functionName)
	}
	unit[functionName] = h
	return nil
}

// MustRegister is like Register but panics on error. Intended for init().
func (r *Registry) MustRegister(importPath, functionName string, fn any, opts ...Option) {
	if err := r.Register(importPath, functionName, fn, opts...); err != nil {
		panic(fmt.Sprintf("protoflow: register %s.%s: %v", importPath, functionName, err))
	}
}

// Resolve looks up the handler for importPath/functionName.
// Failures are returned as *core.ResolutionError.
func (r *Registry) Resolve(importPath, functionName string) (*handler.Handler, error) {
	key := core.FunctionKey{ImportPath: importPath, FunctionName: functionName}

	r.mu.RLock()
	defer r.mu.RUnlock()

	unit, ok := r.units[importPath]
	if !ok {
		return nil, &core.ResolutionError{Key: key, Err: fmt.Errorf("%w %q", core.ErrUnknownUnit, importPath)}
	}
	h, ok := unit[functionName]
	if !ok {
		return nil, &core.ResolutionError{Key: key, Err: fmt.Errorf("%w %q in unit %q", core.ErrUnknownSymbol, functionName, importPath)}
	}
	return h, nil
}

// Has checks if a function is registered.
func (r *Registry) Has(importPath, functionName string) bool {
	_, err := r.Resolve(importPath, functionName)
	return err == nil
}

// Functions returns all registered keys sorted by unit then name.
func (r *Registry) Functions() []core.FunctionKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []core.FunctionKey
	for unit, fns := range r.units {
		for name := range fns {
			keys = append(keys, core.FunctionKey{ImportPath: unit, FunctionName: name})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ImportPath != keys[j].ImportPath {
			return keys[i].ImportPath < keys[j].ImportPath
		}
		return keys[i].FunctionName < keys[j].FunctionName
	})
	return keys
}

// Describe returns catalog rows for every registered function.
func (r *Registry) Describe() []*core.Function {
	keys := r.Functions()
	out := make([]*core.Function, 0, len(keys))

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		h := r.units[k.ImportPath][k.FunctionName]
		out = append(out, &core.Function{
			ImportPath:   k.ImportPath,
			FunctionName: k.FunctionName,
			ArgType:      h.ArgTypeName(),
			ResultType:   h.ResultTypeName(),
			HasContext:   h.HasContext,
		})
	}
	return out
}

// Register adds fn to the Default registry.
func Register(importPath, functionName string, fn any, opts ...Option) error {
	return Default.Register(importPath, functionName, fn, opts...)
}

// MustRegister adds fn to the Default registry and panics on error.
func MustRegister(importPath, functionName string, fn any, opts ...Option) {
	Default.MustRegister(importPath, functionName, fn, opts...)
}
