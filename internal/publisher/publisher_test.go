package publisher_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbot/internal/notify"
	"matchbot/internal/publisher"
	"matchbot/internal/publisher/publishertest"
	logx "matchbot/pkg/logx"
)

const (
	settle = 5 * time.Second
	base   = 2 * time.Second
)

type harness struct {
	pf *publishertest.Platform

	mu     sync.Mutex
	sleeps []string // "after <n calls>: <d>"
	notes  []notify.Message
}

func (h *harness) Notify(_ context.Context, m notify.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, m)
}

func newHarness(fail func(op string, n int) error) (*harness, *publisher.Publisher) {
	h := &harness{pf: &publishertest.Platform{Fail: fail}}
	pub := publisher.New(h.pf, publisher.Options{
		Settle:    settle,
		RetryMax:  3,
		RetryBase: base,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			h.sleeps = append(h.sleeps, fmt.Sprintf("after %d: %s", len(h.pf.Calls()), d))
			h.mu.Unlock()
			return ctx.Err()
		},
		Notify: h,
		Log:    logx.Nop(),
	})
	return h, pub
}

type transient struct{}

func (transient) Error() string   { return "503" }
func (transient) Temporary() bool { return true }

func TestSubmitSettlesAfterEachStateChange(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(nil)

	got, err := pub.Submit(context.Background(), "board", "Title", "Body", true, "thread-old")
	require.NoError(t, err)
	assert.Equal(t, publisher.Handle("thread-1"), got)

	assert.Equal(t, []string{"submit", "unsticky", "sticky"}, h.pf.Ops())
	assert.Equal(t, []string{"after 1: 5s", "after 2: 5s", "after 3: 5s"}, h.sleeps)
	calls := h.pf.Calls()
	assert.Equal(t, publisher.Handle("thread-old"), calls[1].Handle)
	assert.Equal(t, publisher.Handle("thread-1"), calls[2].Handle)
}

func TestSubmitRetriesTransientWithLinearBackoff(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(func(op string, n int) error {
		if op == "submit" && n < 3 {
			return transient{}
		}
		return nil
	})

	_, err := pub.Submit(context.Background(), "b", "t", "x", false, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"submit!", "submit!", "submit"}, h.pf.Ops())
	assert.Equal(t, []string{"after 1: 2s", "after 2: 4s", "after 3: 5s"}, h.sleeps)
}

func TestRetryCeiling(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(func(op string, n int) error {
		return fmt.Errorf("edit: %w", publisher.ErrTransient)
	})

	err := pub.Edit(context.Background(), "thread-1", "body")
	var pe *publisher.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "edit", pe.Op)
	assert.Equal(t, 3, pe.Attempts)
	assert.Len(t, h.pf.Calls(), 3)
}

func TestNonTransientFailsImmediately(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(func(op string, n int) error { return errors.New("forbidden") })

	_, err := pub.Submit(context.Background(), "b", "t", "x", true, "")
	var pe *publisher.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Attempts)
	assert.Equal(t, []string{"submit!"}, h.pf.Ops())
	assert.Empty(t, h.sleeps)
}

func TestModerationFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(func(op string, n int) error {
		if op == "sticky" {
			return errors.New("not admin")
		}
		return nil
	})

	got, err := pub.Submit(context.Background(), "b", "t", "x", true, "")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	require.Len(t, h.notes, 1)
	assert.Equal(t, notify.LevelWarn, h.notes[0].Level)
	assert.Contains(t, h.notes[0].Text, "sticky")
}

func TestCommentDistinguish(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(nil)
	c, err := pub.Comment(context.Background(), "thread-9", "see post thread", true)
	require.NoError(t, err)
	assert.NotEmpty(t, c)
	assert.Equal(t, []string{"reply", "distinguish"}, h.pf.Ops())
	assert.Equal(t, []string{"after 1: 5s", "after 2: 5s"}, h.sleeps)
	assert.Equal(t, c, h.pf.Calls()[1].Handle)
}

func TestEditDoesNotSettle(t *testing.T) {
	t.Parallel()
	h, pub := newHarness(nil)
	require.NoError(t, pub.Edit(context.Background(), "thread-1", "b"))
	assert.Empty(t, h.sleeps)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	assert.True(t, publisher.IsTransient(transient{}))
	assert.True(t, publisher.IsTransient(fmt.Errorf("x: %w", publisher.ErrTransient)))
	assert.False(t, publisher.IsTransient(errors.New("x")))
	assert.False(t, publisher.IsTransient(nil))
}

func TestSubmitReturnsHandleWhenCancelledWhileSettling(t *testing.T) {
	t.Parallel()
	pf := &publishertest.Platform{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := publisher.New(pf, publisher.Options{
		Settle: settle,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
		Log: logx.Nop(),
	})

	got, err := pub.Submit(ctx, "b", "t", "x", true, "thread-old")
	require.NoError(t, err)
	assert.Equal(t, publisher.Handle("thread-1"), got)
	assert.Equal(t, []string{"submit"}, pf.Ops())
}
