// Package orchestrator drives one event through its thread lifecycle:
// pre-match thread, live thread kept current by polling, post-match thread.
//
// Every thread creation is recorded in the registry right after the submit,
// and a recorded phase is never submitted again, so invocations can be
// repeated or resumed after a restart.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchbot/internal/match"
	"matchbot/internal/notify"
	"matchbot/internal/publisher"
	"matchbot/internal/registry"
	"matchbot/internal/render"
	logx "matchbot/pkg/logx"
)

// Threads is the registry surface the orchestrator uses.
type Threads interface {
	Get(id string) (registry.ThreadRecord, bool)
	SetPhase(id, slug string, p registry.Phase, handle string) (registry.ThreadRecord, error)
}

// Publisher is satisfied by *publisher.Publisher.
type Publisher interface {
	Submit(ctx context.Context, board, title, body string, sticky bool, unsticky publisher.Handle) (publisher.Handle, error)
	Edit(ctx context.Context, h publisher.Handle, body string) error
	Comment(ctx context.Context, h publisher.Handle, body string, distinguish bool) (publisher.Handle, error)
	Link(h publisher.Handle) string
}

// ErrRegistry wraps registry write failures. They end the event's task.
var ErrRegistry = errors.New("orchestrator: registry write failed")

type Options struct {
	Board    string
	Interval time.Duration // between live cycles, default 60s

	Source    Source
	Threads   Threads
	Publisher Publisher
	Renderer  render.Renderer
	Notify    notify.Sink
	Log       logx.Logger

	// Sleep replaces the context-aware sleep between live cycles.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Orchestrator struct {
	board    string
	interval time.Duration
	src      Source
	threads  Threads
	pub      Publisher
	render   render.Renderer
	sink     notify.Sink
	log      logx.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		board:    opts.Board,
		interval: opts.Interval,
		src:      opts.Source,
		threads:  opts.Threads,
		pub:      opts.Publisher,
		render:   opts.Renderer,
		sink:     opts.Notify,
		log:      opts.Log.With(logx.String("comp", "orchestrator")),
		sleep:    opts.Sleep,
	}
	if o.interval <= 0 {
		o.interval = 60 * time.Second
	}
	if o.render == nil {
		o.render = render.Plain{}
	}
	if o.sink == nil {
		o.sink = notify.Nop{}
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	return o
}

// Result reports where an invocation left the event.
type Result struct {
	ID      string
	State   State
	Handle  publisher.Handle // thread of the invoked phase
	Created bool             // false when an existing thread was reused
	Cycles  int              // live cycles run
}

type LiveOptions struct {
	// Post submits the post-match thread once the event is final.
	Post bool
}

func (o *Orchestrator) runLog(id, phase string) logx.Logger {
	return o.log.With(
		logx.String("event", id),
		logx.String("phase", phase),
		logx.String("run", uuid.NewString()),
	)
}

// Pre creates the pre-match thread unless one is already recorded.
func (o *Orchestrator) Pre(ctx context.Context, id string) (Result, error) {
	log := o.runLog(id, "pre")
	rec, _ := o.threads.Get(id)
	if rec.Pre != "" {
		log.Info("pre thread exists; skipping", logx.String("handle", rec.Pre))
		return Result{ID: id, State: StateOf(rec, false), Handle: publisher.Handle(rec.Pre)}, nil
	}

	e, err := o.fetch(ctx, id, registry.PhasePre, rec)
	if err != nil {
		notify.Error(ctx, o.sink, id, "pre fetch failed: %v", err)
		return Result{ID: id, State: StateOf(rec, false)}, err
	}
	o.checkCritical(ctx, log, e)

	title, body := o.render.Pre(e)
	h, serr := o.pub.Submit(ctx, o.board, title, body, true, "")
	if h == "" {
		notify.Error(ctx, o.sink, id, "pre thread submit failed: %v", serr)
		return Result{ID: id, State: StateOf(rec, false)}, serr
	}
	// a handle means the thread exists and must be recorded whatever else failed
	rec, err = o.record(id, e, registry.PhasePre, h)
	if err != nil {
		notify.Error(ctx, o.sink, id, "%v", err)
		return Result{ID: id, State: PreThreadPosted, Handle: h, Created: true}, err
	}
	if serr != nil {
		return Result{ID: id, State: StateOf(rec, false), Handle: h, Created: true}, serr
	}
	log.Info("pre thread created", logx.String("handle", string(h)))
	notify.Info(ctx, o.sink, id, "pre thread created: %s", o.pub.Link(h))
	return Result{ID: id, State: StateOf(rec, false), Handle: h, Created: true}, nil
}

// Live creates or re-attaches to the live thread and edits it every interval
// until the event is final. Fetch and edit failures are reported and the
// loop continues. Cancellation is honoured between cycles and during the
// sleep; the registry is never left half-updated.
func (o *Orchestrator) Live(ctx context.Context, id string, opts LiveOptions) (Result, error) {
	log := o.runLog(id, "live")
	rec, _ := o.threads.Get(id)
	if rec.Post != "" {
		log.Info("post thread exists; nothing to maintain", logx.String("handle", rec.Post))
		return Result{ID: id, State: PostThreadPosted, Handle: publisher.Handle(rec.Live)}, nil
	}

	res := Result{ID: id, State: StateOf(rec, false), Handle: publisher.Handle(rec.Live)}
	if res.Handle != "" {
		log.Info("re-attaching to live thread", logx.String("handle", rec.Live))
	}
	warned := false

	for {
		res.Cycles++
		// operators may set a stream override mid-match; pre may have landed
		if cur, ok := o.threads.Get(id); ok {
			rec = cur
		}
		e, err := o.fetch(ctx, id, registry.PhaseLive, rec)
		switch {
		case ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			log.Warn("live fetch failed", logx.Int("cycle", res.Cycles), logx.Err(err))
			notify.Error(ctx, o.sink, id, "live fetch failed (cycle %d): %v", res.Cycles, err)
		default:
			if !warned {
				warned = o.checkCritical(ctx, log, e)
			}
			title, body := o.render.Live(e)
			if res.Handle == "" {
				h, serr := o.pub.Submit(ctx, o.board, title, body, true, publisher.Handle(rec.Pre))
				if h == "" {
					if ctx.Err() != nil {
						return res, ctx.Err()
					}
					log.Warn("live thread submit failed", logx.Err(serr))
					notify.Error(ctx, o.sink, id, "live thread submit failed: %v", serr)
					break
				}
				res.Handle, res.Created = h, true
				if rec, err = o.record(id, e, registry.PhaseLive, h); err != nil {
					notify.Error(ctx, o.sink, id, "%v", err)
					return res, err
				}
				if serr != nil {
					return res, serr
				}
				log.Info("live thread created", logx.String("handle", string(h)))
				notify.Info(ctx, o.sink, id, "live thread created: %s", o.pub.Link(h))
			} else if eerr := o.pub.Edit(ctx, res.Handle, body); eerr != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn("live edit failed", logx.Int("cycle", res.Cycles), logx.Err(eerr))
				notify.Error(ctx, o.sink, id, "live edit failed (cycle %d): %v", res.Cycles, eerr)
			}
			res.State = StateOf(rec, e.Final)

			if e.Final && res.Handle != "" {
				log.Info("event final", logx.Int("cycles", res.Cycles), logx.String("status", e.StatusText))
				notify.Info(ctx, o.sink, id, "event final after %d cycle(s)", res.Cycles)
				if !opts.Post {
					return res, nil
				}
				post, err := o.post(ctx, id, e)
				if err != nil {
					return res, err
				}
				res.State = post.State
				return res, nil
			}
		}

		// safe point: the fetch/edit pair is complete
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := o.sleep(ctx, o.interval); err != nil {
			return res, err
		}
	}
}

// Post creates the post-match thread unless one is already recorded, then
// links it from the live thread.
func (o *Orchestrator) Post(ctx context.Context, id string) (Result, error) {
	return o.post(ctx, id, nil)
}

// post reuses e when the caller already fetched final data.
func (o *Orchestrator) post(ctx context.Context, id string, e *match.Event) (Result, error) {
	log := o.runLog(id, "post")
	rec, _ := o.threads.Get(id)
	if rec.Post != "" {
		log.Info("post thread exists; skipping", logx.String("handle", rec.Post))
		return Result{ID: id, State: PostThreadPosted, Handle: publisher.Handle(rec.Post)}, nil
	}

	if e == nil {
		var err error
		if e, err = o.fetch(ctx, id, registry.PhasePost, rec); err != nil {
			notify.Error(ctx, o.sink, id, "post fetch failed: %v", err)
			return Result{ID: id, State: StateOf(rec, false)}, err
		}
		o.checkCritical(ctx, log, e)
	}

	title, body := o.render.Post(e)
	h, serr := o.pub.Submit(ctx, o.board, title, body, true, publisher.Handle(rec.Live))
	if h == "" {
		notify.Error(ctx, o.sink, id, "post thread submit failed: %v", serr)
		return Result{ID: id, State: StateOf(rec, e.Final)}, serr
	}
	rec, err := o.record(id, e, registry.PhasePost, h)
	if err != nil {
		notify.Error(ctx, o.sink, id, "%v", err)
		return Result{ID: id, State: PostThreadPosted, Handle: h, Created: true}, err
	}
	if serr != nil {
		return Result{ID: id, State: PostThreadPosted, Handle: h, Created: true}, serr
	}
	log.Info("post thread created", logx.String("handle", string(h)))
	notify.Info(ctx, o.sink, id, "post thread created: %s", o.pub.Link(h))

	if rec.Live != "" {
		link := fmt.Sprintf("Post-match thread: %s", o.pub.Link(h))
		if _, err := o.pub.Comment(ctx, publisher.Handle(rec.Live), link, true); err != nil && ctx.Err() == nil {
			log.Warn("cross-link comment failed", logx.Err(err))
			notify.Warn(ctx, o.sink, id, "cross-link comment failed: %v", err)
		}
	}
	return Result{ID: id, State: PostThreadPosted, Handle: h, Created: true}, nil
}

func (o *Orchestrator) fetch(ctx context.Context, id string, phase registry.Phase, rec registry.ThreadRecord) (*match.Event, error) {
	e, err := o.src.Fetch(ctx, id, phase)
	if err != nil {
		return nil, err
	}
	if rec.StreamOverride != "" {
		e.StreamLink = rec.StreamOverride
	}
	if len(e.Invalid) > 0 {
		o.log.Debug("event has invalid fields", logx.String("event", id), logx.Strings("fields", e.Invalid))
	}
	return e, nil
}

// checkCritical notifies when identity fields are missing. The thread is
// still rendered from whatever arrived.
func (o *Orchestrator) checkCritical(ctx context.Context, log logx.Logger, e *match.Event) bool {
	missing := e.MissingCritical()
	if len(missing) == 0 {
		return false
	}
	log.Warn("event missing critical fields", logx.Strings("fields", missing))
	notify.Warn(ctx, o.sink, e.ID, "missing critical fields %v; rendering degraded thread", missing)
	return true
}

func (o *Orchestrator) record(id string, e *match.Event, p registry.Phase, h publisher.Handle) (registry.ThreadRecord, error) {
	slug := e.Slug
	if slug == "" {
		slug = match.Slug(e.Home.Name, e.Away.Name)
	}
	rec, err := o.threads.SetPhase(id, slug, p, string(h))
	if err != nil {
		o.log.Error("registry write failed",
			logx.String("event", id),
			logx.String("phase", string(p)),
			logx.String("handle", string(h)),
			logx.Err(err),
		)
		return rec, fmt.Errorf("%w: %s %s: %w", ErrRegistry, id, p, err)
	}
	return rec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
