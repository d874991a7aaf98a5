// Package publisher wraps the discussion platform with retries and the
// settling delay its moderation actions require.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matchbot/internal/notify"
	logx "matchbot/pkg/logx"
)

// Handle identifies a thread or comment on the platform. It is opaque here.
type Handle string

// Platform is the raw discussion platform SDK surface.
type Platform interface {
	Submit(ctx context.Context, board, title, body string) (Handle, error)
	Edit(ctx context.Context, h Handle, body string) error
	Reply(ctx context.Context, h Handle, body string) (Handle, error)
	Sticky(ctx context.Context, h Handle) error
	Unsticky(ctx context.Context, h Handle) error
	Distinguish(ctx context.Context, h Handle) error
}

// ErrTransient marks platform errors that are worth retrying.
var ErrTransient = errors.New("publisher: transient platform error")

// PublishError is returned once an operation has failed for good.
type PublishError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried: errors wrapping
// ErrTransient, and errors exposing Temporary() true or a 5xx status.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) && tmp.Temporary() {
		return true
	}
	var st interface{ StatusCode() int }
	if errors.As(err, &st) && st.StatusCode() >= 500 {
		return true
	}
	return false
}

// Observer receives one call per finished operation. internal/metrics implements it.
type Observer interface {
	ObservePublish(op string, ok bool, attempts int)
}

type Options struct {
	Settle    time.Duration // default 5s
	RetryMax  int           // total attempts, default 3
	RetryBase time.Duration // default 2s; attempt n waits n*RetryBase

	// Sleep replaces the context-aware sleep used for settling and backoff.
	Sleep func(ctx context.Context, d time.Duration) error

	Notify   notify.Sink
	Observer Observer
	Log      logx.Logger
}

type Publisher struct {
	p      Platform
	settle time.Duration
	max    int
	base   time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	sink   notify.Sink
	obs    Observer
	log    logx.Logger
}

func New(p Platform, opts Options) *Publisher {
	pub := &Publisher{
		p:      p,
		settle: opts.Settle,
		max:    opts.RetryMax,
		base:   opts.RetryBase,
		sleep:  opts.Sleep,
		sink:   opts.Notify,
		obs:    opts.Observer,
		log:    opts.Log.With(logx.String("comp", "publisher")),
	}
	if pub.settle < 0 {
		pub.settle = 0
	}
	if pub.max <= 0 {
		pub.max = 3
	}
	if pub.base <= 0 {
		pub.base = 2 * time.Second
	}
	if pub.sleep == nil {
		pub.sleep = sleepCtx
	}
	if pub.sink == nil {
		pub.sink = notify.Nop{}
	}
	return pub
}

// Submit creates a thread. Afterwards it unstickies the previous thread (if
// any) and stickies the new one, settling after each state change. Moderation
// failures are logged and notified but do not fail the submit.
//
// Once the platform has accepted the thread the handle is always returned
// with a nil error. Cancellation during the follow-up only cuts moderation
// short, so callers can record the handle.
func (p *Publisher) Submit(ctx context.Context, board, title, body string, sticky bool, unsticky Handle) (Handle, error) {
	var h Handle
	err := p.retry(ctx, "submit", func(ctx context.Context) error {
		var err error
		h, err = p.p.Submit(ctx, board, title, body)
		return err
	})
	if err != nil {
		return "", err
	}
	if err := p.followUp(ctx, h, sticky, unsticky); err != nil {
		p.log.Warn("moderation interrupted", logx.String("handle", string(h)), logx.Err(err))
	}
	return h, nil
}

func (p *Publisher) followUp(ctx context.Context, h Handle, sticky bool, unsticky Handle) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	if unsticky != "" {
		p.moderate(ctx, "unsticky", unsticky, p.p.Unsticky)
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
	if sticky {
		p.moderate(ctx, "sticky", h, p.p.Sticky)
		return p.wait(ctx)
	}
	return nil
}

// Edit replaces a thread body. It is not a moderation action and does not settle.
func (p *Publisher) Edit(ctx context.Context, h Handle, body string) error {
	return p.retry(ctx, "edit", func(ctx context.Context) error {
		return p.p.Edit(ctx, h, body)
	})
}

// Comment replies to a thread and optionally distinguishes the reply.
func (p *Publisher) Comment(ctx context.Context, h Handle, body string, distinguish bool) (Handle, error) {
	var c Handle
	err := p.retry(ctx, "comment", func(ctx context.Context) error {
		var err error
		c, err = p.p.Reply(ctx, h, body)
		return err
	})
	if err != nil {
		return "", err
	}
	if !distinguish || c == "" {
		return c, nil
	}
	if err := p.wait(ctx); err != nil {
		return c, err
	}
	p.moderate(ctx, "distinguish", c, p.p.Distinguish)
	return c, p.wait(ctx)
}

func (p *Publisher) moderate(ctx context.Context, op string, h Handle, fn func(context.Context, Handle) error) {
	err := p.retry(ctx, op, func(ctx context.Context) error { return fn(ctx, h) })
	if err == nil || ctx.Err() != nil {
		return
	}
	p.log.Warn("moderation action failed", logx.String("op", op), logx.String("handle", string(h)), logx.Err(err))
	notify.Warn(ctx, p.sink, "", "%s on %s failed: %v", op, h, err)
}

// retry runs fn up to max times. Transient failures back off linearly;
// anything else fails at once.
func (p *Publisher) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	attempt := 1
	for ; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			p.observe(op, true, attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTransient(err) || attempt >= p.max {
			break
		}
		delay := time.Duration(attempt) * p.base
		p.log.Debug("platform call failed; retrying",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	p.observe(op, false, attempt)
	return &PublishError{Op: op, Attempts: attempt, Err: err}
}

func (p *Publisher) observe(op string, ok bool, attempts int) {
	if p.obs != nil {
		p.obs.ObservePublish(op, ok, attempts)
	}
}

func (p *Publisher) wait(ctx context.Context) error {
	if p.settle <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, p.settle)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Linker is implemented by platforms that can turn a handle into a URL.
type Linker interface {
	URL(h Handle) string
}

// Link returns a URL for h when the platform supports it, the raw handle otherwise.
func (p *Publisher) Link(h Handle) string {
	if l, ok := p.p.(Linker); ok {
		if u := strings.TrimSpace(l.URL(h)); u != "" {
			return u
		}
	}
	return string(h)
}
