package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"matchbot/internal/cache"
	"matchbot/internal/config"
	"matchbot/internal/httpserver"
	"matchbot/internal/metrics"
	"matchbot/internal/notify"
	"matchbot/internal/orchestrator"
	"matchbot/internal/provider"
	"matchbot/internal/publisher"
	"matchbot/internal/registry"
	"matchbot/internal/render"
	rtsup "matchbot/internal/runtime/supervisor"
	"matchbot/internal/scheduler"
	"matchbot/internal/transport/telegram"
	logx "matchbot/pkg/logx"
)

// Events older than this are pruned from the cache.
const cacheRetention = 14 * 24 * time.Hour

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	metrics *metrics.Manager
	client  *provider.Client
	threads *registry.Registry
	tg      *telegram.Adapter
	pub     *publisher.Publisher
	notif   *notify.Async
	orch    *orchestrator.Orchestrator
	cache   *cache.Store // nil when disabled
	cmds    *telegram.Commands

	sup   *rtsup.Supervisor
	sched *scheduler.Scheduler
}

// New loads the config at cfgPath and builds every component. Nothing runs
// in the background until Run or one of the one-shot helpers is called.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg))
	cfgm.SetLogger(log)
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, log: log, logs: logs, metrics: metrics.New()}

	endpoints := provider.EndpointsFromConfig(cfg.Providers)
	limiter := provider.NewLimiter(endpoints)
	a.metrics.WatchLimiter(limiter)
	base, maxDelay := cfg.Providers.Backoff()
	a.client = provider.New(provider.Options{
		Endpoints:     endpoints,
		Limiter:       limiter,
		MaxAttempts:   cfg.Providers.Attempts(),
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		APIKey:        cfg.Providers.APIKey,
		APIKeyHeader:  cfg.Providers.HeaderName(),
		UserAgent:     cfg.Providers.UserAgent,
		DumpDir:       cfg.Providers.DumpDir,
		Observer:      a.metrics,
		Log:           log,
	})

	a.threads, err = registry.Open(cfg.Registry.FilePath(), log)
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open registry: %w", err)
	}

	a.tg, err = telegram.New(telegram.Options{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.Poll(),
		Log:         log,
	})
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	a.notif = notify.NewAsync(a.notifySender(cfg), notify.AsyncOptions{
		QueueSize:  cfg.Notify.Queue(),
		RatePerSec: cfg.Notify.Rate(),
		Timeout:    cfg.Notify.SendTimeout(),
	}, log)

	a.pub = publisher.New(a.tg, publisher.Options{
		Settle:    cfg.Publisher.SettleDelay(),
		RetryMax:  cfg.Publisher.Attempts(),
		RetryBase: cfg.Publisher.Backoff(),
		Notify:    a.notif,
		Observer:  a.metrics,
		Log:       log,
	})

	a.orch = orchestrator.New(orchestrator.Options{
		Board:     cfg.Publisher.Board,
		Interval:  cfg.Orchestrator.PollInterval(),
		Source:    orchestrator.NewProviderSource(a.client, log),
		Threads:   a.threads,
		Publisher: a.pub,
		Renderer:  render.Plain{Location: cfg.Scheduler.Location()},
		Notify:    a.notif,
		Log:       log,
	})

	if cfg.Cache.Enabled {
		st, err := cache.Open(ctx, cfg.Cache.FilePath(), cfg.Cache.Busy(), log)
		if err != nil {
			logs.Close()
			return nil, fmt.Errorf("open cache: %w", err)
		}
		a.cache = st
		log.Info("cache enabled", logx.String("path", cfg.Cache.FilePath()))
	}

	if cfg.Telegram.Commands {
		a.cmds = telegram.NewCommands(a.threads, cfg.Telegram.OwnerUserIDs, log)
		a.tg.Register(a.cmds)
	}

	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) notifySender(cfg *config.Config) notify.Sender {
	if !cfg.Notify.Enabled {
		return notify.Nop{}
	}
	var m notify.Multi
	if u := strings.TrimSpace(cfg.Notify.WebhookURL); u != "" {
		m = append(m, notify.Webhook{URL: u, Client: &http.Client{Timeout: cfg.Notify.SendTimeout()}})
	}
	if t := cfg.Notify.Telegram; t.Enabled && t.ChatID != 0 {
		m = append(m, notify.Telegram{Bot: a.tg, ChatID: t.ChatID, ThreadID: t.ThreadID})
	}
	if len(m) == 0 {
		a.log.Warn("notify enabled but no sender configured")
		return notify.Nop{}
	}
	return m
}

// Run starts the daemon: discovery, timers, operator commands, the HTTP
// surface and config hot reload. It blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.metrics.WatchSupervisor(a.sup)

	a.sup.Go("notify", a.notif.Run)

	if a.cmds != nil {
		a.tg.Start(a.sup.Context())
	}

	pre, live := cfg.Scheduler.Offsets()
	var store scheduler.Store
	if a.cache != nil {
		store = a.cache
	}
	sched, err := scheduler.New(scheduler.Options{
		Discovery:     cfg.Scheduler.DiscoverySpec(),
		Location:      cfg.Scheduler.Location(),
		PreOffset:     pre,
		LiveOffset:    live,
		LookaheadDays: cfg.Scheduler.Days(),
		Competitions:  cfg.Scheduler.Competitions,
		Post:          cfg.Orchestrator.PostEnabled(),
		Discoverer:    a.client,
		Runner:        a.orch,
		Store:         store,
		Supervisor:    a.sup,
		Notify:        a.notif,
		Log:           a.log,
	})
	if err != nil {
		return a.fail(err)
	}
	a.sched = sched
	if cfg.Scheduler.Enabled {
		if err := sched.Start(a.sup.Context()); err != nil {
			return a.fail(err)
		}
	} else {
		a.log.Info("scheduler disabled; threads are only created on demand")
	}

	if a.cache != nil {
		a.sup.Go("cache.prune", a.pruneLoop)
	}

	if cfg.HTTP.Enabled {
		deps := httpserver.Deps{
			Threads: a.threads,
			Timers:  sched.Snapshot,
			Tasks:   a.sup.Snapshot,
			Metrics: a.metrics.Handler(),
			Log:     a.log,
		}
		if a.cache != nil {
			deps.Schedule = a.cache
		}
		srv := httpserver.New(deps)
		addr := cfg.HTTP.ListenAddr()
		a.sup.Go("http", func(c context.Context) error { return srv.Run(c, addr) })
	}

	a.startReload()

	a.log.Info("matchbot started",
		logx.String("board", cfg.Publisher.Board),
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Bool("commands", a.cmds != nil),
		logx.Bool("http", cfg.HTTP.Enabled),
	)

	<-a.sup.Context().Done()
	return a.Stop(context.Background(), StopSignal)
}

func (a *App) fail(err error) error {
	_ = a.Stop(context.Background(), StopFatalError)
	return err
}

func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: only the latest config matters.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.apply(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
}

// apply hot-applies logging, notify and command owners. Other sections are
// reported and take effect on restart.
func (a *App) apply(prev, next *config.Config) {
	changed := config.ChangedSections(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reloaded (no changes)")
		return
	}
	a.logs.Apply(logConfig(next))
	a.notif.Apply(a.notifySender(next), next.Notify.Rate(), next.Notify.SendTimeout())
	if a.cmds != nil {
		a.cmds.SetOwners(next.Telegram.OwnerUserIDs)
	}
	if config.RequiresRestart(changed) {
		a.log.Warn("config changed; restart required for some sections", logx.Strings("changed", changed))
		return
	}
	a.log.Info("config reloaded", logx.Strings("changed", changed))
}

func (a *App) pruneLoop(ctx context.Context) error {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := a.cache.Prune(ctx, time.Now().Add(-cacheRetention))
		switch {
		case err != nil && ctx.Err() == nil:
			a.log.Warn("cache prune failed", logx.Err(err))
		case n > 0:
			a.log.Debug("cache pruned", logx.Int64("rows", n))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Stop unwinds Run. Each step is bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.sched != nil {
		step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	}
	step("telegram", 2*time.Second, a.tg.Stop)
	if a.sup != nil {
		step("tasks", 10*time.Second, a.sup.Stop)
	}
	step("notify", 3*time.Second, func(c context.Context) error { a.notif.Drain(c); return nil })
	return a.Close()
}

// Close releases the cache and the log file. Stop calls it.
func (a *App) Close() error {
	var err error
	if a.cache != nil {
		err = a.cache.Close()
		a.cache = nil
	}
	if a.logs != nil {
		err = errors.Join(err, a.logs.Close())
	}
	return err
}

// Pre, Live and Post run one orchestration in the foreground and flush
// pending notifications before returning.

func (a *App) Pre(ctx context.Context, id string) (orchestrator.Result, error) {
	return a.once(ctx, func(c context.Context) (orchestrator.Result, error) { return a.orch.Pre(c, id) })
}

func (a *App) Live(ctx context.Context, id string, post bool) (orchestrator.Result, error) {
	return a.once(ctx, func(c context.Context) (orchestrator.Result, error) {
		return a.orch.Live(c, id, orchestrator.LiveOptions{Post: post})
	})
}

func (a *App) Post(ctx context.Context, id string) (orchestrator.Result, error) {
	return a.once(ctx, func(c context.Context) (orchestrator.Result, error) { return a.orch.Post(c, id) })
}

func (a *App) once(ctx context.Context, fn func(context.Context) (orchestrator.Result, error)) (orchestrator.Result, error) {
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	sup.Go("notify", a.notif.Run)

	res, err := fn(sup.Context())

	timeout := a.cfgm.Get().Notify.SendTimeout()
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = sup.Stop(stopCtx)
	a.notif.Drain(stopCtx)
	return res, err
}

// OpenRegistry loads the config at cfgPath and opens only its thread
// registry, for commands that neither publish nor fetch.
func OpenRegistry(cfgPath string) (*registry.Registry, error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	return registry.Open(cfg.Registry.FilePath(), logx.NewConsole(cfg.Logging.Level))
}
