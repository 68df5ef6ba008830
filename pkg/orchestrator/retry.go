package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how often a call is repeated after an orchestration
// failure and how long to wait between attempts.
type RetryPolicy struct {
	// Attempts counts the first try. 1 disables retries.
	Attempts int

	// Base is the wait before the second attempt. Each later wait doubles,
	// up to Max.
	Base time.Duration
	Max  time.Duration

	// Jitter spreads each wait by +/- this fraction of it.
	Jitter float64
}

// DefaultRetryPolicy is used by WithRetryAttempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Base:     100 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.1,
	}
}

func singleAttempt() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Attempts = 1
	return p
}

// delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) delay(failed int) time.Duration {
	d := p.Base
	for i := 1; i < failed && d < p.Max; i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		spread := time.Duration(float64(d) * p.Jitter * (2*rand.Float64() - 1))
		if d+spread > 0 {
			d += spread
		}
	}
	return d
}

// retry runs op until it succeeds, fails with an error Retryable rejects,
// or the policy runs out of attempts. onRetry sees the attempt number about
// to start and the error that caused it.
func retry(ctx context.Context, p RetryPolicy, op func(attempt int) error, onRetry func(attempt int, err error)) error {
	attempt := 1
	for {
		err := op(attempt)
		if err == nil || attempt >= p.Attempts || !Retryable(err) {
			return err
		}

		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		attempt++
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
}

// Retryable reports whether a failed attempt is worth repeating.
// Only failures before the runner took the job qualify. Once the descriptor
// is sent the function may have run, and a runner that died or answered with
// garbage will do the same again.
func Retryable(err error) bool {
	var callErr *CallError
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrNoResponse),
		!errors.As(err, &callErr):
		return false
	}
	return callErr.Stage == StageListen || callErr.Stage == StageSpawn || callErr.Stage == StageAccept
}
