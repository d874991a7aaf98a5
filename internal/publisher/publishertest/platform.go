// Package publishertest provides an in-memory publisher.Platform for tests.
package publishertest

import (
	"context"
	"fmt"
	"sync"

	"matchbot/internal/publisher"
)

// Call is one recorded platform invocation.
type Call struct {
	Op     string
	Board  string
	Title  string
	Body   string
	Handle publisher.Handle
}

// Platform records every call. Fail, when set, is consulted before each call
// and may return an error to inject.
type Platform struct {
	mu    sync.Mutex
	calls []Call
	seq   int

	Fail func(op string, n int) error // n counts calls of op, starting at 1
	opN  map[string]int
}

func (p *Platform) record(c Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opN == nil {
		p.opN = map[string]int{}
	}
	p.opN[c.Op]++
	if p.Fail != nil {
		if err := p.Fail(c.Op, p.opN[c.Op]); err != nil {
			p.calls = append(p.calls, Call{Op: c.Op + "!", Handle: c.Handle})
			return err
		}
	}
	p.calls = append(p.calls, c)
	return nil
}

func (p *Platform) next(prefix string) publisher.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return publisher.Handle(fmt.Sprintf("%s-%d", prefix, p.seq))
}

func (p *Platform) Submit(_ context.Context, board, title, body string) (publisher.Handle, error) {
	h := p.next("thread")
	if err := p.record(Call{Op: "submit", Board: board, Title: title, Body: body, Handle: h}); err != nil {
		return "", err
	}
	return h, nil
}

func (p *Platform) Edit(_ context.Context, h publisher.Handle, body string) error {
	return p.record(Call{Op: "edit", Body: body, Handle: h})
}

func (p *Platform) Reply(_ context.Context, h publisher.Handle, body string) (publisher.Handle, error) {
	c := p.next("comment")
	if err := p.record(Call{Op: "reply", Body: body, Handle: h}); err != nil {
		return "", err
	}
	return c, nil
}

func (p *Platform) Sticky(_ context.Context, h publisher.Handle) error {
	return p.record(Call{Op: "sticky", Handle: h})
}

func (p *Platform) Unsticky(_ context.Context, h publisher.Handle) error {
	return p.record(Call{Op: "unsticky", Handle: h})
}

func (p *Platform) Distinguish(_ context.Context, h publisher.Handle) error {
	return p.record(Call{Op: "distinguish", Handle: h})
}

// Calls returns a copy of the successful and failed (suffixed "!") calls.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Ops returns only the op names, in order.
func (p *Platform) Ops() []string {
	calls := p.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

// Count returns how many successful calls of op were recorded.
func (p *Platform) Count(op string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}
