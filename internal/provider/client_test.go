package provider

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchbot/pkg/logx"
)

const eventJSON = `{"event":{"id":1,"slug":"a-b","startTimestamp":1700000000,
"tournament":{"name":"League"},"homeTeam":{"id":10,"name":"A"},"awayTeam":{"id":20,"name":"B"},
"status":{"code":100,"type":"finished"}}}`

type recordingObserver struct {
	mu    sync.Mutex
	kinds map[string][]Kind
}

func (o *recordingObserver) ObserveRequest(endpoint string, kind Kind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.kinds == nil {
		o.kinds = map[string][]Kind{}
	}
	o.kinds[endpoint] = append(o.kinds[endpoint], kind)
}

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Options)) *Client {
	t.Helper()
	var eps []Endpoint
	for _, name := range []string{EndpointSchedule, EndpointEvent, EndpointLineups, EndpointStatistics,
		EndpointIncidents, EndpointBroadcasts, EndpointForm, EndpointPreview} {
		eps = append(eps, Endpoint{Name: name, BaseURL: srv.URL, Concurrency: 4, Timeout: time.Second})
	}
	opts := Options{
		Endpoints:     eps,
		HTTP:          srv.Client(),
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status       int
		allowMissing bool
		want         Kind
		empty        bool
	}{
		{status: 200, want: KindSuccess},
		{status: 204, want: KindSuccess, empty: true},
		{status: 404, allowMissing: true, want: KindSuccess, empty: true},
		{status: 404, want: KindClientError},
		{status: 400, want: KindClientError},
		{status: 403, want: KindClientError},
		{status: 429, want: KindRateLimited},
		{status: 429, allowMissing: true, want: KindRateLimited},
		{status: 500, want: KindServerError},
		{status: 503, want: KindServerError},
	}
	for _, tt := range tests {
		got := classify(tt.status, []byte("body"), tt.allowMissing)
		assert.Equal(t, tt.want, got.Kind, "status %d allowMissing=%v", tt.status, tt.allowMissing)
		if tt.empty {
			assert.Empty(t, got.Payload)
		}
	}
}

func TestServerErrorRetryCeiling(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := newTestClient(t, srv, func(o *Options) { o.Observer = obs })
	_, err := c.Request(context.Background(), EndpointEvent, "/event/1", nil, false)

	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(3), hits.Load())
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Attempts)
	assert.Equal(t, http.StatusInternalServerError, pe.Status)
	assert.True(t, IsRetryable(err))
	assert.Len(t, obs.kinds[EndpointEvent], 3)
}

func TestNonRetryableReturnImmediately(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrClient},
		{http.StatusNotFound, ErrClient},
		{http.StatusTooManyRequests, ErrRateLimited},
	} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(tc.status)
		}))
		c := newTestClient(t, srv, nil)
		_, err := c.Request(context.Background(), EndpointEvent, "/event/1", nil, false)
		srv.Close()

		require.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Equal(t, int32(1), hits.Load(), "status %d", tc.status)
		assert.False(t, IsRetryable(err))
	}
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(eventJSON))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ev, invalid, err := c.Event(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Equal(t, int64(1), ev.Event.ID)
	assert.Equal(t, "A", ev.Event.HomeTeam.Name)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAllowMissing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	body, err := c.Request(context.Background(), EndpointLineups, "/event/1/lineups", nil, true)
	require.NoError(t, err)
	assert.Nil(t, body)

	lineups, invalid, err := c.Lineups(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Empty(t, lineups.Home.Players)

	_, _, err = c.Event(context.Background(), "1")
	require.ErrorIs(t, err, ErrClient)
}

func TestTimeoutIsRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	c.endpoints[EndpointEvent] = Endpoint{Name: EndpointEvent, BaseURL: srv.URL, Timeout: 20 * time.Millisecond}

	_, err := c.Request(context.Background(), EndpointEvent, "/event/1", nil, false)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCallerCancellationIsNotAnOutcome(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, EndpointEvent, "/event/1", nil, false)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	var pe *Error
	assert.False(t, errors.As(err, &pe))
}

func TestUnknownEndpoint(t *testing.T) {
	t.Parallel()
	c := New(Options{})
	_, err := c.Request(context.Background(), "nope", "/", nil, false)
	require.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestPersistDumpsPayload(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(eventJSON))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, srv, func(o *Options) {
		o.DumpDir = dir
		o.Endpoints[1].Persist = true // event
	})
	_, _, err := c.Event(context.Background(), "1")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, EndpointEvent, "event_1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, eventJSON, string(b))
}

func TestDumpPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("d", "schedule", "scheduled-events_2024-05-01.json"),
		dumpPath("d", "schedule", "/scheduled-events/2024-05-01", nil))
	assert.Equal(t, filepath.Join("d", "event", "index.json"), dumpPath("d", "event", "/", nil))
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()
	c := New(Options{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 350 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 350*time.Millisecond, c.backoff(3))
	assert.Equal(t, 350*time.Millisecond, c.backoff(8))
}

func TestDecodeLenient(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")

	raw := []byte(`{"event":{"id":7,"startTimestamp":1,"tournament":{"name":"L"},
		"homeTeam":{"id":1},"awayTeam":{"id":2,"name":"B"},"status":{"type":"inprogress"}}}`)
	ev, fields := Decode[EventResponse](log, EndpointEvent, raw, false)
	assert.Equal(t, []string{"event.homeTeam.name"}, fields)
	assert.Equal(t, int64(7), ev.Event.ID)
	assert.Equal(t, "B", ev.Event.AwayTeam.Name)
	assert.Contains(t, buf.String(), "payload validation failed")
	assert.Contains(t, buf.String(), "event.homeTeam.name")

	ev, fields = Decode[EventResponse](log, EndpointEvent, []byte(`{"event":`), false)
	assert.Equal(t, []string{PathRoot}, fields)
	assert.Zero(t, ev.Event.ID)

	_, fields = Decode[LineupsResponse](log, EndpointLineups, nil, true)
	assert.Empty(t, fields)
	_, fields = Decode[EventResponse](log, EndpointEvent, nil, false)
	assert.Equal(t, []string{PathRoot}, fields)
}

func TestAbbreviateKeepsRunesWhole(t *testing.T) {
	body := []byte("  éééé  ")
	got := abbreviate(body, 3)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "é…", got)

	assert.Equal(t, "short", abbreviate([]byte(" short "), 10))
	assert.Equal(t, "ab…", abbreviate([]byte("abcdef"), 2))
}
