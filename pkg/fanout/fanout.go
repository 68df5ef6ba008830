// Package fanout runs a batch of calls in parallel runner processes and
// gathers their results.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/orchestrator"
)

// Caller makes one orchestrated call.
type Caller interface {
	Call(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// FanOut calls every sub-call through caller, at most the configured
// concurrency at a time, and returns one Result per sub-call in order.
// Results are returned even when the fan-out as a whole fails.
func FanOut[T any](ctx context.Context, caller Caller, subCalls []SubCall, opts ...Option) ([]Result[T], error) {
	if len(subCalls) == 0 {
		return nil, nil
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}

	reqs := make([]orchestrator.Request, len(subCalls))
	for i, sc := range subCalls {
		req, err := sc.request()
		if err != nil {
			return nil, fmt.Errorf("sub-call %d: %w", i, err)
		}
		reqs[i] = req
	}

	if cfg.totalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.totalTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Result[T], len(reqs))
	sem := make(chan struct{}, cfg.concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		results[i].Index = i

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i].Err = ctx.Err()
			continue
		}
		if err := ctx.Err(); err != nil {
			<-sem
			results[i].Err = err
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = callOne[T](ctx, caller, cfg, i, req)
			if results[i].Err != nil && cfg.strategy == StrategyFailFast {
				cancel()
			}
		}()
	}
	wg.Wait()

	return results, evaluate(cfg, results)
}

func callOne[T any](ctx context.Context, caller Caller, cfg *config, index int, req orchestrator.Request) Result[T] {
	res := Result[T]{Index: index}

	if cfg.subTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.subTimeout)
		defer cancel()
	}

	out, err := caller.Call(ctx, req)
	if err != nil {
		res.Err = err
		return res
	}
	res.RunID = out.RunID

	if out.Failed() {
		res.Err = &FunctionError{
			Key:   core.FunctionKey{ImportPath: req.ImportPath, FunctionName: req.FunctionName},
			Trace: out.Envelope.ErrorString(),
		}
		return res
	}

	if err := json.Unmarshal(out.Envelope.Result, &res.Value); err != nil {
		res.Err = fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return res
}

// evaluate applies the strategy to finished results.
func evaluate[T any](cfg *config, results []Result[T]) error {
	var failures []SubCallFailure
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, SubCallFailure{Index: r.Index, RunID: r.RunID, Error: r.Err.Error()})
		}
	}
	if len(failures) == 0 {
		return nil
	}

	failed := false
	switch cfg.strategy {
	case StrategyFailFast:
		failed = true
	case StrategyThreshold:
		succeeded := float64(len(results)-len(failures)) / float64(len(results))
		failed = succeeded < cfg.threshold
	case StrategyCollectAll:
	}
	if !failed {
		return nil
	}

	return &Error{
		TotalCount:  len(results),
		FailedCount: len(failures),
		Strategy:    cfg.strategy,
		Failures:    failures,
	}
}
