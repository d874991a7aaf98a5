// Package scheduler discovers upcoming events on a cron schedule and arms
// one-shot timers that run the orchestrator before kickoff.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"matchbot/internal/cache"
	"matchbot/internal/match"
	"matchbot/internal/notify"
	"matchbot/internal/orchestrator"
	"matchbot/internal/provider"
	"matchbot/internal/registry"
	rtsup "matchbot/internal/runtime/supervisor"
	logx "matchbot/pkg/logx"
)

// Discoverer lists the events scheduled on a day. *provider.Client implements it.
type Discoverer interface {
	Schedule(ctx context.Context, date time.Time) (provider.ScheduleResponse, []string, error)
}

// Runner is satisfied by *orchestrator.Orchestrator.
type Runner interface {
	Pre(ctx context.Context, id string) (orchestrator.Result, error)
	Live(ctx context.Context, id string, opts orchestrator.LiveOptions) (orchestrator.Result, error)
}

// Store receives discovered events. Optional.
type Store interface {
	Upsert(ctx context.Context, e cache.Event) error
}

type Options struct {
	Discovery     string // cron spec, default "0 6 * * *"
	Location      *time.Location
	PreOffset     time.Duration
	LiveOffset    time.Duration
	LookaheadDays int
	Competitions  []string // empty means all
	Post          bool

	Discoverer Discoverer
	Runner     Runner
	Store      Store
	Supervisor *rtsup.Supervisor
	Notify     notify.Sink
	Log        logx.Logger

	Now func() time.Time
}

// Pending is one armed timer.
type Pending struct {
	Key   string         `json:"key"`
	Phase registry.Phase `json:"phase"`
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
}

type timer struct {
	t   *time.Timer
	ver uint64
	p   Pending
}

type Scheduler struct {
	opts   Options
	parser cron.Parser
	log    logx.Logger

	mu sync.Mutex
	c  *cron.Cron

	tmu    sync.Mutex
	timers map[string]*timer
	ver    map[string]uint64

	// closed when the running pre task of an event returns
	pmu     sync.Mutex
	preRuns map[string]chan struct{}
}

// New validates the discovery spec. Nothing runs until Start.
func New(opts Options) (*Scheduler, error) {
	if opts.Discoverer == nil || opts.Runner == nil || opts.Supervisor == nil {
		return nil, errors.New("scheduler: discoverer, runner and supervisor are required")
	}
	if strings.TrimSpace(opts.Discovery) == "" {
		opts.Discovery = "0 6 * * *"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = 2
	}
	if opts.Notify == nil {
		opts.Notify = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		opts: opts,
		// SecondOptional allows both 5-field and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:    opts.Log.With(logx.String("comp", "scheduler")),
		timers:  map[string]*timer{},
		ver:     map[string]uint64{},
		preRuns: map[string]chan struct{}{},
	}
	if _, err := s.parser.Parse(opts.Discovery); err != nil {
		return nil, fmt.Errorf("scheduler: discovery spec %q: %w", opts.Discovery, err)
	}
	return s, nil
}

// Start registers the discovery job and runs one discovery right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.opts.Location))
	if _, err := c.AddFunc(s.opts.Discovery, func() { s.discoverLogged(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.opts.Supervisor.GoUnique("discovery.initial", func(ctx context.Context) error {
		s.discoverLogged(ctx)
		return nil
	})
	s.log.Info("scheduler started",
		logx.String("discovery", s.opts.Discovery),
		logx.String("tz", s.opts.Location.String()),
		logx.Duration("pre_offset", s.opts.PreOffset),
		logx.Duration("live_offset", s.opts.LiveOffset),
	)
	return nil
}

// Stop halts cron and disarms every timer. Running orchestrations belong to
// the supervisor and stop with its context.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for k, t := range s.timers {
		t.t.Stop()
		delete(s.timers, k)
	}
	s.tmu.Unlock()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) discoverLogged(ctx context.Context) {
	n, err := s.Discover(ctx)
	if err != nil {
		s.log.Warn("discovery failed", logx.Int("armed", n), logx.Err(err))
		notify.Error(ctx, s.opts.Notify, "", "discovery failed: %v", err)
		return
	}
	s.log.Info("discovery done", logx.Int("armed", n))
}

// Discover fetches the schedule for the lookahead days, caches the events
// and arms their timers. Days that fail are skipped and reported.
func (s *Scheduler) Discover(ctx context.Context) (int, error) {
	now := s.opts.Now().In(s.opts.Location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.opts.Location)

	var (
		errs  []error
		armed int
		seen  = map[string]bool{}
	)
	for i := 0; i < s.opts.LookaheadDays; i++ {
		date := day.AddDate(0, 0, i)
		resp, invalid, err := s.opts.Discoverer.Schedule(ctx, date)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", date.Format(time.DateOnly), err))
			continue
		}
		if len(invalid) > 0 {
			s.log.Debug("schedule has invalid fields", logx.String("date", date.Format(time.DateOnly)), logx.Strings("fields", invalid))
		}
		for _, info := range resp.Events {
			e := match.New("")
			e.ProjectEvent(info)
			if e.ID == "" || seen[e.ID] || !s.wanted(e.Competition) {
				continue
			}
			seen[e.ID] = true
			s.store(ctx, e)
			armed += s.arm(e, now)
		}
	}
	return armed, errors.Join(errs...)
}

func (s *Scheduler) wanted(competition string) bool {
	if len(s.opts.Competitions) == 0 {
		return true
	}
	for _, c := range s.opts.Competitions {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(competition)) {
			return true
		}
	}
	return false
}

func (s *Scheduler) store(ctx context.Context, e *match.Event) {
	if s.opts.Store == nil {
		return
	}
	err := s.opts.Store.Upsert(ctx, cache.Event{
		ID:          e.ID,
		Kickoff:     e.Kickoff,
		Competition: e.Competition,
		Home:        e.Home.Name,
		Away:        e.Away.Name,
		Status:      string(e.Phase),
	})
	if err != nil {
		s.log.Debug("cache upsert failed", logx.String("event", e.ID), logx.Err(err))
	}
}

// arm registers the pre and live timers of e and returns how many were
// armed. Final events get none. Once the live time has passed the pre
// thread is pointless and only live is armed.
func (s *Scheduler) arm(e *match.Event, now time.Time) int {
	if e.Final || e.Kickoff.IsZero() {
		return 0
	}
	liveAt := e.Kickoff.Add(-s.opts.LiveOffset)
	n := 0
	if liveAt.After(now) {
		s.Arm(registry.PhasePre, e.ID, e.Kickoff.Add(-s.opts.PreOffset))
		n++
	}
	s.Arm(registry.PhaseLive, e.ID, liveAt)
	return n + 1
}

func key(p registry.Phase, id string) string { return string(p) + ":" + id }

// Arm schedules phase p for event id at at, replacing any timer with the
// same key. Past-due timers fire immediately.
func (s *Scheduler) Arm(p registry.Phase, id string, at time.Time) {
	k := key(p, id)
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if old, ok := s.timers[k]; ok {
		old.t.Stop()
		delete(s.timers, k)
	}
	s.ver[k]++
	ver := s.ver[k]

	delay := max(at.Sub(s.opts.Now()), 0)
	t := &timer{ver: ver, p: Pending{Key: k, Phase: p, Event: id, At: at}}
	t.t = time.AfterFunc(delay, func() { s.fire(k, ver) })
	s.timers[k] = t
	s.log.Debug("timer armed", logx.String("key", k), logx.Time("at", at), logx.Duration("in", delay))
}

// Disarm removes the timer for key, reporting whether one existed.
func (s *Scheduler) Disarm(p registry.Phase, id string) bool {
	k := key(p, id)
	s.tmu.Lock()
	defer s.tmu.Unlock()
	t, ok := s.timers[k]
	if !ok {
		return false
	}
	t.t.Stop()
	delete(s.timers, k)
	s.ver[k]++
	return true
}

func (s *Scheduler) fire(k string, ver uint64) {
	s.tmu.Lock()
	t, ok := s.timers[k]
	if !ok || t.ver != ver {
		// replaced or removed since
		s.tmu.Unlock()
		return
	}
	delete(s.timers, k)
	s.tmu.Unlock()

	p, id := t.p.Phase, t.p.Event
	var done chan struct{}
	if p == registry.PhasePre {
		done = s.preStarted(id)
	}
	started := s.opts.Supervisor.GoUnique(k, func(ctx context.Context) error {
		if done != nil {
			defer s.preFinished(id, done)
		}
		return s.run(ctx, p, id)
	})
	if !started {
		if done != nil {
			s.preFinished(id, done)
		}
		s.log.Info("task already running", logx.String("key", k))
	}
}

func (s *Scheduler) preStarted(id string) chan struct{} {
	ch := make(chan struct{})
	s.pmu.Lock()
	s.preRuns[id] = ch
	s.pmu.Unlock()
	return ch
}

func (s *Scheduler) preFinished(id string, ch chan struct{}) {
	s.pmu.Lock()
	if s.preRuns[id] == ch {
		delete(s.preRuns, id)
	}
	s.pmu.Unlock()
	close(ch)
}

// awaitPre blocks until a running pre task of id returns, so the live
// thread sees the recorded pre handle it has to unsticky.
func (s *Scheduler) awaitPre(ctx context.Context, id string) error {
	s.pmu.Lock()
	ch := s.preRuns[id]
	s.pmu.Unlock()
	if ch == nil {
		return nil
	}
	s.log.Debug("live waits for pre", logx.String("event", id))
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, p registry.Phase, id string) error {
	var (
		res orchestrator.Result
		err error
	)
	switch p {
	case registry.PhasePre:
		res, err = s.opts.Runner.Pre(ctx, id)
	case registry.PhaseLive:
		// a pre thread created after live started would never be unstickied
		s.Disarm(registry.PhasePre, id)
		if err := s.awaitPre(ctx, id); err != nil {
			return nil
		}
		res, err = s.opts.Runner.Live(ctx, id, orchestrator.LiveOptions{Post: s.opts.Post})
	default:
		return fmt.Errorf("scheduler: unsupported phase %q", p)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s %s: %w", p, id, err)
	}
	s.log.Info("task finished", logx.String("event", id), logx.String("phase", string(p)), logx.String("state", res.State.String()))
	return nil
}

// Snapshot lists armed timers, soonest first.
func (s *Scheduler) Snapshot() []Pending {
	s.tmu.Lock()
	out := make([]Pending, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.p)
	}
	s.tmu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
