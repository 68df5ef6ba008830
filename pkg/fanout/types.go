package fanout

import (
	"encoding/json"
	"fmt"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/orchestrator"
)

// Strategy decides when a fan-out as a whole has failed.
type Strategy string

const (
	StrategyFailFast   Strategy = "fail_fast"
	StrategyCollectAll Strategy = "collect_all"
	StrategyThreshold  Strategy = "threshold"
)

// ParseStrategy maps a request value to a Strategy. Empty means StrategyFailFast.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyFailFast:
		return StrategyFailFast, nil
	case StrategyCollectAll:
		return StrategyCollectAll, nil
	case StrategyThreshold:
		return StrategyThreshold, nil
	}
	return "", fmt.Errorf("fanout: unknown strategy %q", s)
}

// SubCall is one call of a fan-out.
type SubCall struct {
	ImportPath   string
	FunctionName string
	Input        any
}

// Sub creates a sub-call definition.
func Sub(importPath, functionName string, input any) SubCall {
	return SubCall{ImportPath: importPath, FunctionName: functionName, Input: input}
}

func (s SubCall) request() (orchestrator.Request, error) {
	var input json.RawMessage
	switch v := s.Input.(type) {
	case nil:
		input = json.RawMessage("null")
	case json.RawMessage:
		input = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return orchestrator.Request{}, fmt.Errorf("marshal sub-call input: %w", err)
		}
		input = b
	}
	return orchestrator.Request{ImportPath: s.ImportPath, FunctionName: s.FunctionName, Input: input}, nil
}

// Result is the outcome of one sub-call. Exactly one of Value and Err is
// meaningful.
type Result[T any] struct {
	Index int    // position in the sub-call slice
	RunID string // empty when the call never started
	Value T
	Err   error
}

// FunctionError is a sub-call whose function reported a failure.
type FunctionError struct {
	Key   core.FunctionKey
	Trace string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Key, e.Trace)
}

// Error is returned when the strategy judged the fan-out failed.
type Error struct {
	TotalCount  int
	FailedCount int
	Strategy    Strategy
	Failures    []SubCallFailure
}

func (e *Error) Error() string {
	return fmt.Sprintf("fan-out failed: %d/%d sub-calls failed", e.FailedCount, e.TotalCount)
}

// SubCallFailure records one failed sub-call inside an Error.
type SubCallFailure struct {
	Index int
	RunID string
	Error string
}

// Values extracts values from successful results, in call order.
func Values[T any](results []Result[T]) []T {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			values = append(values, r.Value)
		}
	}
	return values
}

// Partition splits results into successful values and errors, each in call
// order.
func Partition[T any](results []Result[T]) ([]T, []error) {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return Values(results), errs
}

// SuccessCount counts results without an error.
func SuccessCount[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// AllSucceeded is true for an empty slice.
func AllSucceeded[T any](results []Result[T]) bool {
	return SuccessCount(results) == len(results)
}
