// Package ratelimit implements per-endpoint admission control.
//
// Each endpoint has two independent bounds:
//   - a concurrency bound (max simultaneous in-flight requests), enforced by a
//     FIFO weighted semaphore
//   - a rolling call quota (N calls per window T), enforced by a sliding log of
//     the last N admission timestamps
//
// Acquire blocks the calling goroutine only. Releasing a Guard frees the
// concurrency slot; admission timestamps age out on the next Acquire.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrUnknownEndpoint = errors.New("ratelimit: unknown endpoint")

// Limits configures one endpoint.
//
// Concurrency <= 0 is treated as 1. Calls <= 0 or Window <= 0 disables the
// rolling quota for that endpoint.
type Limits struct {
	Concurrency int
	Calls       int
	Window      time.Duration
}

// Limiter holds one bucket per endpoint. The endpoint set is fixed at construction.
type Limiter struct {
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	name   string
	limits Limits
	sem    *semaphore.Weighted

	mu     sync.Mutex
	stamps []time.Time // oldest first, len <= limits.Calls

	inFlight atomic.Int64
	admitted atomic.Uint64
}

type Option func(*Limiter)

// WithClock overrides the wall clock used for window timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(endpoints map[string]Limits, opts ...Option) *Limiter {
	l := &Limiter{buckets: make(map[string]*bucket, len(endpoints)), now: time.Now}
	for _, o := range opts {
		o(l)
	}
	for name, lim := range endpoints {
		key := strings.TrimSpace(name)
		if key == "" {
			continue
		}
		if lim.Concurrency <= 0 {
			lim.Concurrency = 1
		}
		b := &bucket{
			name:   key,
			limits: lim,
			sem:    semaphore.NewWeighted(int64(lim.Concurrency)),
		}
		if lim.Calls > 0 && lim.Window > 0 {
			b.stamps = make([]time.Time, 0, lim.Calls)
		}
		l.buckets[key] = b
	}
	return l
}

// Guard represents one admitted call. Release must be called on every exit path.
type Guard struct {
	b    *bucket
	once sync.Once
}

// Release frees the concurrency slot. It is safe to call more than once.
func (g *Guard) Release() {
	if g == nil || g.b == nil {
		return
	}
	g.once.Do(func() {
		g.b.inFlight.Add(-1)
		g.b.sem.Release(1)
	})
}

// Acquire blocks until the endpoint has a free concurrency slot and room in its
// rolling window, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, endpoint string) (*Guard, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	b := l.buckets[endpoint]
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := b.admit(ctx, l.now); err != nil {
		b.sem.Release(1)
		return nil, err
	}
	b.inFlight.Add(1)
	b.admitted.Add(1)
	return &Guard{b: b}, nil
}

// admit waits for window capacity and records the admission.
//
// The window mutex is released while waiting; the window is re-checked after
// every wake-up.
func (b *bucket) admit(ctx context.Context, now func() time.Time) error {
	if b.limits.Calls <= 0 || b.limits.Window <= 0 {
		return nil
	}
	for {
		b.mu.Lock()
		t := now()
		for len(b.stamps) > 0 && t.Sub(b.stamps[0]) >= b.limits.Window {
			b.stamps = b.stamps[1:]
		}
		if len(b.stamps) < b.limits.Calls {
			b.stamps = append(b.stamps, t)
			b.mu.Unlock()
			return nil
		}
		wait := b.limits.Window - t.Sub(b.stamps[0])
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// EndpointStats is a point-in-time view of one bucket.
type EndpointStats struct {
	Name     string
	InFlight int64
	Admitted uint64
	Window   int
	Limits   Limits
}

func (l *Limiter) Snapshot() []EndpointStats {
	out := make([]EndpointStats, 0, len(l.buckets))
	for _, b := range l.buckets {
		b.mu.Lock()
		n := len(b.stamps)
		b.mu.Unlock()
		out = append(out, EndpointStats{
			Name:     b.name,
			InFlight: b.inFlight.Load(),
			Admitted: b.admitted.Load(),
			Window:   n,
			Limits:   b.limits,
		})
	}
	return out
}
