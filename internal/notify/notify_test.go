package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchbot/pkg/logx"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return c.err
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestWebhookPostsContent(t *testing.T) {
	t.Parallel()
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := Webhook{URL: srv.URL, Client: srv.Client()}.Send(context.Background(),
		Message{Level: LevelError, Event: "E1", Text: "edit failed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"[error] event E1: edit failed"}`, <-got)
}

func TestWebhookReportsStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	err := Webhook{URL: srv.URL}.Send(context.Background(), Message{Text: "x"})
	require.Error(t, err)
}

func TestAsyncDeliversAndSwallowsFailures(t *testing.T) {
	t.Parallel()
	s := &captureSender{err: errors.New("down")}
	a := NewAsync(s, AsyncOptions{QueueSize: 4, RatePerSec: 100}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()

	Error(ctx, a, "E1", "loop failed: %d", 1)
	Info(ctx, a, "E1", "thread created")
	require.Eventually(t, func() bool { return s.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	st := a.Stats()
	assert.Equal(t, uint64(2), st.Failed)
	assert.Equal(t, uint64(0), st.Sent)
	assert.Equal(t, "loop failed: 1", s.msgs[0].Text)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	t.Parallel()
	a := NewAsync(Nop{}, AsyncOptions{QueueSize: 2}, logx.Nop())
	for i := 0; i < 5; i++ {
		a.Notify(context.Background(), Message{Text: "x"})
	}
	st := a.Stats()
	assert.Equal(t, 2, st.Queued)
	assert.Equal(t, uint64(3), st.Dropped)
}

func TestMultiReturnsFirstError(t *testing.T) {
	t.Parallel()
	a, b := &captureSender{err: errors.New("a")}, &captureSender{}
	err := Multi{a, nil, b}.Send(context.Background(), Message{Text: "x"})
	require.EqualError(t, err, "a")
	assert.Equal(t, 1, b.count())
}

func TestNilSinkHelpers(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { Warn(context.Background(), nil, "", "x") })
}

func TestAsyncDrainFlushesQueue(t *testing.T) {
	t.Parallel()
	s := &captureSender{}
	a := NewAsync(s, AsyncOptions{QueueSize: 4, RatePerSec: 100}, logx.Nop())
	a.Notify(context.Background(), Message{Text: "a"})
	a.Notify(context.Background(), Message{Text: "b"})

	a.Drain(context.Background())
	assert.Equal(t, 2, s.count())
	assert.Equal(t, 0, a.Stats().Queued)
}
