package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/recording"
)

// Clock is the time source of a Scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Hook runs after the scope has been swapped.
type Hook func(ctx context.Context, prev, next *Scope)

// Scheduler fires once per local midnight and replaces the current Scope.
type Scheduler struct {
	loc      *time.Location
	clock    Clock
	schedule cron.Schedule

	current atomic.Pointer[Scope]

	mu    sync.Mutex
	hooks []Hook
}

const midnightSpec = "0 0 * * *"

func NewScheduler(loc *time.Location, clock Clock) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = SystemClock
	}
	sched, err := cron.ParseStandard(midnightSpec)
	if err != nil {
		return nil, fmt.Errorf("parse rollover schedule: %w", err)
	}
	s := &Scheduler{loc: loc, clock: clock, schedule: sched}
	now := clock.Now()
	s.current.Store(newScope(recording.BucketOf(now, loc), now))
	return s, nil
}

// Current returns the scope of the day in progress.
func (s *Scheduler) Current() *Scope {
	return s.current.Load()
}

func (s *Scheduler) Location() *time.Location { return s.loc }

// OnRollover registers h. Hooks run in registration order on the
// scheduler goroutine.
func (s *Scheduler) OnRollover(h Hook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// NextBoundary returns the first local midnight strictly after t.
func (s *Scheduler) NextBoundary(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run waits for each boundary in turn until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		next := s.NextBoundary(now)
		slog.Debug("next rollover", "at", next, "bucket", s.Current().Bucket)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(next.Sub(now)):
		}
		s.Check(ctx)
	}
}

// Check swaps the scope if the wall clock has moved into a new bucket. It
// returns true when a rollover happened.
func (s *Scheduler) Check(ctx context.Context) bool {
	now := s.clock.Now()
	bucket := recording.BucketOf(now, s.loc)
	prev := s.current.Load()
	if prev != nil && prev.Bucket == bucket {
		return false
	}
	next := newScope(bucket, now)
	if !s.current.CompareAndSwap(prev, next) {
		return false
	}

	metrics.Rollovers.Inc()
	slog.Info("day rollover", "from", prev.Bucket, "to", bucket, "cached_identities", prev.Len())

	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()
	for _, h := range hooks {
		h(ctx, prev, next)
	}
	return true
}
