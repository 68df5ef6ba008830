package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/jdziat/protoflow/pkg/core"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Handler is a registered function together with the shape of its signature.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type // nil for func(ctx) ...
	ResultType reflect.Type // nil for functions returning only error
	HasContext bool
}

// PanicError carries a recovered panic and the stack it unwound from.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", core.ErrPanic, e.Value)
}

func (e *PanicError) Unwrap() error {
	return core.ErrPanic
}

// NewHandler inspects fn, which must take (ctx), (in) or (ctx, in) and
// return error or (R, error).
func NewHandler(fn any) (*Handler, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || (v.Kind() == reflect.Func && v.IsNil()) {
		return nil, errors.New("function is nil")
	}
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", t)
	}

	h := &Handler{Fn: v}
	if err := h.parseParams(t); err != nil {
		return nil, err
	}
	if err := h.parseResults(t); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) parseParams(t reflect.Type) error {
	if t.IsVariadic() {
		return errors.New("variadic functions are not supported")
	}
	params := make([]reflect.Type, t.NumIn())
	for i := range params {
		params[i] = t.In(i)
	}
	if len(params) == 0 || len(params) > 2 {
		return fmt.Errorf("want 1-2 arguments, got %d", len(params))
	}

	if params[0].Implements(contextType) {
		h.HasContext = true
		params = params[1:]
	} else if len(params) == 2 {
		return errors.New("the first of two arguments must be context.Context")
	}
	if len(params) == 1 {
		h.ArgsType = params[0]
	}
	return nil
}

func (h *Handler) parseResults(t reflect.Type) error {
	n := t.NumOut()
	if n == 0 || n > 2 || !t.Out(n-1).Implements(errorType) {
		return fmt.Errorf("must return error or (R, error), got %s", t)
	}
	if n == 2 {
		h.ResultType = t.Out(0)
	}
	return nil
}

// Execute decodes input into the argument type, calls the function and
// encodes what it returned. A null or absent input gives the zero value;
// functions returning only error produce a JSON null.
func (h *Handler) Execute(ctx context.Context, input json.RawMessage) (out json.RawMessage, err error) {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return nil, errors.New("handler has no function")
	}

	args := make([]reflect.Value, 0, 2)
	if h.HasContext {
		if ctx == nil {
			ctx = context.Background()
		}
		args = append(args, reflect.ValueOf(ctx))
	}
	if h.ArgsType != nil {
		arg := reflect.New(h.ArgsType)
		if !core.IsNull(input) {
			if err := json.Unmarshal(input, arg.Interface()); err != nil {
				return nil, fmt.Errorf("cannot unmarshal input: %w", err)
			}
		}
		args = append(args, arg.Elem())
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	ret := h.Fn.Call(args)

	if e := ret[len(ret)-1]; !e.IsNil() {
		return nil, e.Interface().(error)
	}
	if h.ResultType == nil {
		return json.RawMessage("null"), nil
	}
	out, err = json.Marshal(ret[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("cannot marshal result: %w", err)
	}
	return out, nil
}

// ArgTypeName describes the input type for catalogs.
func (h *Handler) ArgTypeName() string {
	return typeName(h.ArgsType)
}

// ResultTypeName describes the result type for catalogs.
func (h *Handler) ResultTypeName() string {
	return typeName(h.ResultType)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}
