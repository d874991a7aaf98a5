package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "matchbot/pkg/logx"
)

// Async is a Sink backed by a bounded queue and a single paced worker.
// A full queue drops the message; failed sends are logged at debug and
// never retried.
type Async struct {
	log   logx.Logger
	queue chan Message

	mu      sync.Mutex
	sender  Sender
	limiter *rate.Limiter
	timeout time.Duration

	sent, failed, dropped atomic.Uint64
}

type AsyncOptions struct {
	QueueSize  int           // default 64
	RatePerSec int           // default 1
	Timeout    time.Duration // per send, default 10s
}

func NewAsync(sender Sender, opts AsyncOptions, log logx.Logger) *Async {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	a := &Async{
		log:   log.With(logx.String("comp", "notify")),
		queue: make(chan Message, opts.QueueSize),
	}
	a.Apply(sender, opts.RatePerSec, opts.Timeout)
	return a
}

// Apply swaps the sender and pacing at runtime. The queue size is fixed.
func (a *Async) Apply(sender Sender, ratePerSec int, timeout time.Duration) {
	if sender == nil {
		sender = Nop{}
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a.mu.Lock()
	a.sender = sender
	a.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	a.timeout = timeout
	a.mu.Unlock()
}

func (a *Async) Notify(_ context.Context, m Message) {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	select {
	case a.queue <- m:
	default:
		a.dropped.Add(1)
		a.log.Debug("notification dropped (queue full)", logx.String("event", m.Event))
	}
}

// Run delivers queued messages until ctx is done.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-a.queue:
			a.deliver(ctx, m)
		}
	}
}

// Drain delivers whatever is still queued, stopping early when ctx is done.
func (a *Async) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-a.queue:
			a.deliver(ctx, m)
		default:
			return
		}
	}
}

func (a *Async) deliver(ctx context.Context, m Message) {
	a.mu.Lock()
	sender, limiter, timeout := a.sender, a.limiter, a.timeout
	a.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sender.Send(sctx, m); err != nil {
		a.failed.Add(1)
		a.log.Debug("notification failed", logx.String("event", m.Event), logx.Err(err))
		return
	}
	a.sent.Add(1)
}

type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}

func (a *Async) Stats() Stats {
	return Stats{
		Sent:    a.sent.Load(),
		Failed:  a.failed.Load(),
		Dropped: a.dropped.Load(),
		Queued:  len(a.queue),
	}
}
