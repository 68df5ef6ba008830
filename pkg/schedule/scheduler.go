package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/protoflow/pkg/orchestrator"
)

// DefaultTickInterval is how often the scheduler checks for due entries.
const DefaultTickInterval = time.Second

// Caller runs one function out of process.
type Caller interface {
	Call(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Entry is a named recurring call.
type Entry struct {
	Name     string
	Schedule Schedule
	Request  orchestrator.Request
}

type entry struct {
	Entry
	next    time.Time
	running bool
}

// Option configures a Scheduler.
type Option interface {
	ApplyScheduler(*Scheduler)
}

type schedulerOptionFunc func(*Scheduler)

func (f schedulerOptionFunc) ApplyScheduler(s *Scheduler) { f(s) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return schedulerOptionFunc(func(s *Scheduler) {
		s.logger = l
	})
}

// WithTickInterval sets how often due entries are checked.
func WithTickInterval(d time.Duration) Option {
	return schedulerOptionFunc(func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	})
}

// Scheduler calls entries when they come due. An entry whose previous call
// is still running is skipped for that slot.
type Scheduler struct {
	caller   Caller
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(caller Caller, opts ...Option) *Scheduler {
	s := &Scheduler{
		caller:   caller,
		logger:   slog.Default(),
		interval: DefaultTickInterval,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt.ApplyScheduler(s)
	}
	return s
}

// Add registers an entry. Its first call is one schedule step from now.
func (s *Scheduler) Add(e Entry) error {
	if e.Name == "" {
		return errors.New("schedule: entry name is required")
	}
	if e.Schedule == nil {
		return fmt.Errorf("schedule: entry %q has no schedule", e.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.Name]; exists {
		return fmt.Errorf("schedule: entry %q already exists", e.Name)
	}
	s.entries[e.Name] = &entry{Entry: e, next: e.Schedule.Next(time.Now())}
	return nil
}

// Entries returns the registered entries ordered by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Next returns the next run time of the named entry.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Run checks for due entries until ctx is done, then waits for in-flight calls.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		e.next = e.Schedule.Next(now)
		if e.running {
			s.logger.Warn("skipping scheduled call, previous still running", "name", name)
			continue
		}
		e.running = true
		s.wg.Add(1)
		go s.call(ctx, e)
	}
}

func (s *Scheduler) call(ctx context.Context, e *entry) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()

	res, err := s.caller.Call(ctx, e.Request)
	switch {
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduled call failed", "name", e.Name, "error", err)
		}
	case res.Failed():
		s.logger.Error("scheduled function failed",
			"name", e.Name,
			"run_id", res.RunID,
			"error", res.Envelope.ErrorString(),
		)
	default:
		s.logger.Info("scheduled call completed", "name", e.Name, "run_id", res.RunID, "duration", res.Duration)
	}
}
