// Package supervisor runs named goroutines under a shared context.
//
// Every goroutine is panic-safe. Per-name stats back the /healthz page, and
// GoUnique lets the scheduler refuse a second task for the same event phase.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "matchbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr error

	wg sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*taskStats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the shared context on the first task error or panic.
func WithCancelOnError(enabled bool) Option { return func(s *Supervisor) { s.cancelOnErr = enabled } }

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, stats: map[string]*taskStats{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

type taskStats struct {
	active    int
	started   uint64
	panics    uint64
	failures  uint64
	lastStart time.Time
	lastStop  time.Time
	lastErr   string
}

// TaskStats is a point-in-time view of one task name.
type TaskStats struct {
	Name      string    `json:"name"`
	Active    int       `json:"active"`
	Started   uint64    `json:"started"`
	Panics    uint64    `json:"panics"`
	Failures  uint64    `json:"failures"`
	LastStart time.Time `json:"last_start"`
	LastStop  time.Time `json:"last_stop,omitzero"`
	LastErr   string    `json:"last_err,omitempty"`
}

// Go runs fn in a new goroutine named name.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.startLocked(name)
	s.mu.Unlock()
	s.spawn(name, fn)
}

// GoUnique is Go, but refuses to start when a task with the same name is
// still running. It reports whether fn was started.
func (s *Supervisor) GoUnique(name string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	if st := s.stats[name]; st != nil && st.active > 0 {
		s.mu.Unlock()
		return false
	}
	s.startLocked(name)
	s.mu.Unlock()
	s.spawn(name, fn)
	return true
}

func (s *Supervisor) startLocked(name string) {
	st := s.stats[name]
	if st == nil {
		st = &taskStats{}
		s.stats[name] = st
	}
	st.active++
	st.started++
	st.lastStart = time.Now()
}

func (s *Supervisor) spawn(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.run(name, fn)
		s.finish(name, err)
		if err != nil {
			s.setErr(err)
			if s.cancelOnErr {
				s.cancel()
			}
		}
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.notePanic(name)
			s.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	s.log.Debug("task started", logx.String("task", name))
	err = fn(s.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("task failed", logx.String("task", name), logx.Err(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	s.log.Debug("task stopped", logx.String("task", name))
	return nil
}

func (s *Supervisor) notePanic(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[name]
	if st == nil {
		st = &taskStats{}
		s.stats[name] = st
	}
	st.panics++
}

func (s *Supervisor) finish(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[name]
	st.active--
	st.lastStop = time.Now()
	if err != nil {
		st.failures++
		st.lastErr = err.Error()
	}
}

// GoRestart runs fn and restarts it after errors or panics with exponential
// backoff between lo and hi, until the context is cancelled. A clean
// return stops the task.
func (s *Supervisor) GoRestart(name string, lo, hi time.Duration, fn func(ctx context.Context) error) {
	if lo <= 0 {
		lo = 250 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	s.Go(name, func(ctx context.Context) error {
		backoff := lo
		for {
			startedAt := time.Now()
			err := s.run(name+".attempt", fn)
			if err == nil || ctx.Err() != nil {
				return nil
			}
			if time.Since(startedAt) >= 30*time.Second {
				backoff = lo
			}
			s.log.Warn("task restarting", logx.String("task", name), logx.Duration("backoff", backoff), logx.Err(err))
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			backoff = min(backoff*2, hi)
		}
	})
}

// Running reports whether a task named name is active.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[name]
	return st != nil && st.active > 0
}

// Snapshot lists task stats, active tasks first.
func (s *Supervisor) Snapshot() []TaskStats {
	s.mu.Lock()
	out := make([]TaskStats, 0, len(s.stats))
	for name, st := range s.stats {
		out = append(out, TaskStats{
			Name:      name,
			Active:    st.active,
			Started:   st.started,
			Panics:    st.panics,
			Failures:  st.failures,
			LastStart: st.lastStart,
			LastStop:  st.lastStop,
			LastErr:   st.lastErr,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Active > 0) != (out[j].Active > 0) {
			return out[i].Active > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

func (s *Supervisor) setErr(err error) {
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.firstErr = err
		s.mu.Unlock()
	})
}

// Stop cancels the shared context and waits for every task, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}
