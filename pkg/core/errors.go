package core

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors
var (
	ErrMissingSocket  = errors.New("protoflow: PROTOFLOW_SOCKET not set")
	ErrUnknownProfile = errors.New("protoflow: unknown transport profile")
	ErrUnknownFraming = errors.New("protoflow: unknown framing")
	ErrNoResponseChan = errors.New("protoflow: no response channel")
)

// Decode errors
var (
	ErrMissingField    = errors.New("protoflow: missing required field")
	ErrInvalidField    = errors.New("protoflow: invalid field")
	ErrRequestTooLarge = errors.New("protoflow: request exceeds size limit")
	ErrInvalidFrame    = errors.New("protoflow: invalid frame")
)

// Resolution errors
var (
	ErrUnknownUnit      = errors.New("protoflow: unknown unit")
	ErrUnknownSymbol    = errors.New("protoflow: unknown function")
	ErrInvalidUnitName  = errors.New("protoflow: invalid import path (must be dotted or slashed identifiers)")
	ErrInvalidFuncName  = errors.New("protoflow: invalid function name (must be an identifier)")
	ErrDuplicateFunc    = errors.New("protoflow: function already registered")
	ErrNameTooLong      = errors.New("protoflow: name too long")
	ErrFunctionRejected = errors.New("protoflow: function signature not supported")
)

// Storage errors
var ErrRunNotFound = errors.New("protoflow: run not found")

// ErrResultTooLarge means the encoded result exceeds the response limit.
var ErrResultTooLarge = errors.New("protoflow: result exceeds response size limit")

// ErrPanic marks an invocation that panicked instead of returning.
var ErrPanic = errors.New("protoflow: function panicked")

// ErrorKind names one of the four runner failure categories.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "ConfigurationError"
	KindDecode        ErrorKind = "DecodeError"
	KindResolution    ErrorKind = "ResolutionError"
	KindInvocation    ErrorKind = "InvocationError"
)

// ConfigurationError reports a missing or unusable channel locator.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Configuration wraps err as a ConfigurationError.
func Configuration(err error) error {
	return &ConfigurationError{Err: err}
}

// DecodeError reports a malformed or incomplete request body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode wraps err as a DecodeError.
func Decode(err error) error {
	return &DecodeError{Err: err}
}

// ResolutionError reports an unknown unit or function.
type ResolutionError struct {
	Key FunctionKey
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// InvocationError reports a target function that returned an error or panicked.
type InvocationError struct {
	Key   FunctionKey
	Err   error
	Stack []byte // set when the function panicked
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Key, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// KindOf classifies err into the runner taxonomy. Anything raised inside the
// target is an invocation failure, whatever it wraps. Unclassified errors are
// reported as invocation failures too.
func KindOf(err error) ErrorKind {
	var invErr *InvocationError
	var cfgErr *ConfigurationError
	var decErr *DecodeError
	var resErr *ResolutionError
	switch {
	case errors.As(err, &invErr):
		return KindInvocation
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &decErr):
		return KindDecode
	case errors.As(err, &resErr):
		return KindResolution
	default:
		return KindInvocation
	}
}

// FormatTrace renders err as the human-readable trace sent in the error field.
func FormatTrace(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(string(KindOf(err)))
	b.WriteString(": ")
	b.WriteString(err.Error())

	var invErr *InvocationError
	if errors.As(err, &invErr) && len(invErr.Stack) > 0 {
		b.WriteString("\n\n")
		b.Write(invErr.Stack)
	}
	return b.String()
}
