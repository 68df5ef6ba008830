package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/orchestrator"
)

// fakeCaller echoes its input, fails functions named "fail" and returns an
// orchestration error for functions named "broken".
type fakeCaller struct {
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	calls []orchestrator.Request
}

func (c *fakeCaller) Call(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if n <= seen || c.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	runID := req.FunctionName + "-" + string(req.Input)
	switch req.FunctionName {
	case "fail":
		return &orchestrator.Result{RunID: runID, Envelope: core.Failure("InvocationError: boom")}, nil
	case "broken":
		return nil, errors.New("spawn failed")
	}
	return &orchestrator.Result{RunID: runID, Envelope: core.Success(req.Input)}, nil
}

func TestFanOut_Empty(t *testing.T) {
	results, err := FanOut[int](context.Background(), &fakeCaller{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestFanOut_AllSucceed(t *testing.T) {
	caller := &fakeCaller{}
	subs := []SubCall{
		Sub("library.echo", "echo", 1),
		Sub("library.echo", "echo", 2),
		Sub("library.echo", "echo", 3),
	}

	results, err := FanOut[int](context.Background(), caller, subs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i+1, r.Value)
		assert.NotEmpty(t, r.RunID)
	}
	assert.Equal(t, []int{1, 2, 3}, Values(results))
}

func TestFanOut_BoundsConcurrency(t *testing.T) {
	caller := &fakeCaller{delay: 20 * time.Millisecond}
	subs := make([]SubCall, 10)
	for i := range subs {
		subs[i] = Sub("library.echo", "echo", i)
	}

	results, err := FanOut[int](context.Background(), caller, subs, WithConcurrency(3))
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.LessOrEqual(t, caller.maxSeen.Load(), int32(3))
	assert.Greater(t, caller.maxSeen.Load(), int32(1))
}

func TestFanOut_CollectAll(t *testing.T) {
	subs := []SubCall{
		Sub("library.echo", "echo", "a"),
		Sub("library.echo", "fail", "b"),
		Sub("library.echo", "broken", "c"),
	}

	results, err := FanOut[string](context.Background(), &fakeCaller{}, subs, CollectAll())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].Value)

	var fnErr *FunctionError
	require.ErrorAs(t, results[1].Err, &fnErr)
	assert.Equal(t, "library.echo.fail", fnErr.Key.String())
	assert.True(t, strings.HasPrefix(fnErr.Trace, "InvocationError: "))
	assert.NotEmpty(t, results[1].RunID)

	assert.EqualError(t, results[2].Err, "spawn failed")
	assert.Empty(t, results[2].RunID)
}

func TestFanOut_FailFast(t *testing.T) {
	subs := []SubCall{
		Sub("library.echo", "fail", 0),
		Sub("library.echo", "echo", 1),
	}

	results, err := FanOut[int](context.Background(), &fakeCaller{}, subs, WithConcurrency(1))
	require.Error(t, err)
	require.Len(t, results, 2)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StrategyFailFast, fe.Strategy)
	assert.Equal(t, 2, fe.TotalCount)
	assert.Equal(t, 0, fe.Failures[0].Index)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
}

func TestFanOut_Threshold(t *testing.T) {
	subs := []SubCall{
		Sub("library.echo", "echo", 1),
		Sub("library.echo", "echo", 2),
		Sub("library.echo", "echo", 3),
		Sub("library.echo", "fail", 4),
	}

	results, err := FanOut[int](context.Background(), &fakeCaller{}, subs, Threshold(0.75))
	require.NoError(t, err)
	assert.Equal(t, 3, SuccessCount(results))

	_, err = FanOut[int](context.Background(), &fakeCaller{}, subs, Threshold(0.9))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.FailedCount)
}

func TestFanOut_UndecodableResult(t *testing.T) {
	results, err := FanOut[int](context.Background(), &fakeCaller{}, []SubCall{Sub("library.echo", "echo", "text")}, CollectAll())
	require.NoError(t, err)
	assert.ErrorContains(t, results[0].Err, "failed to unmarshal result")
}

func TestFanOut_SubCallTimeout(t *testing.T) {
	caller := &fakeCaller{delay: time.Second}
	results, err := FanOut[json.RawMessage](context.Background(), caller,
		[]SubCall{Sub("library.echo", "echo", 1)},
		CollectAll(), WithSubCallTimeout(20*time.Millisecond))
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestFanOut_InvalidInput(t *testing.T) {
	_, err := FanOut[int](context.Background(), &fakeCaller{}, []SubCall{Sub("library.echo", "echo", make(chan int))})
	assert.ErrorContains(t, err, "sub-call 0")
}
