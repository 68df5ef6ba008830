package fanout

import "time"

// DefaultConcurrency bounds how many runner processes a fan-out keeps alive at once.
const DefaultConcurrency = 4

// Option tunes a single FanOut call.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	strategy     Strategy
	threshold    float64
	concurrency  int
	subTimeout   time.Duration
	totalTimeout time.Duration
}

func defaultConfig() *config {
	return &config{strategy: StrategyFailFast, threshold: 1, concurrency: DefaultConcurrency}
}

// WithStrategy picks how failures decide the outcome. threshold is the
// fraction of sub-calls (0..1) that must succeed and only matters for
// StrategyThreshold.
func WithStrategy(s Strategy, threshold float64) Option {
	return optionFunc(func(c *config) {
		c.strategy = s
		if s == StrategyThreshold {
			c.threshold = threshold
		}
	})
}

// FailFast stops at the first failed sub-call. This is the default.
func FailFast() Option { return WithStrategy(StrategyFailFast, 0) }

// CollectAll runs every sub-call and never fails the fan-out; callers inspect
// each Result for partial failures.
func CollectAll() Option { return WithStrategy(StrategyCollectAll, 0) }

// Threshold runs every sub-call and fails if fewer than pct succeeded.
func Threshold(pct float64) Option { return WithStrategy(StrategyThreshold, pct) }

// WithConcurrency limits concurrent runners; n below 1 means one at a time.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *config) {
		c.concurrency = max(n, 1)
	})
}

// WithSubCallTimeout bounds each sub-call on its own.
func WithSubCallTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.subTimeout = d })
}

// WithTimeout bounds the whole fan-out.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.totalTimeout = d })
}
