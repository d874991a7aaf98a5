package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbot/internal/provider"
	"matchbot/internal/ratelimit"
)

func TestObservers(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObserveRequest("event", provider.KindServerError, 20*time.Millisecond)
	m.ObserveRequest("event", provider.KindServerError, 20*time.Millisecond)
	m.ObserveRequest("event", provider.KindSuccess, 5*time.Millisecond)
	m.ObservePublish("submit", true, 2)
	m.ObservePublish("edit", false, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("event", provider.KindServerError.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("event", provider.KindSuccess.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishOps.WithLabelValues("edit", "failed")))
}

func TestHandlerExportsLimiter(t *testing.T) {
	t.Parallel()
	m := New()
	l := ratelimit.New(map[string]ratelimit.Limits{"lineups": {Concurrency: 2, Calls: 5, Window: time.Minute}})
	m.WatchLimiter(l)

	g, err := l.Acquire(context.Background(), "lineups")
	require.NoError(t, err)
	defer g.Release()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `matchbot_ratelimit_in_flight{endpoint="lineups"} 1`)
	assert.Contains(t, string(body), `matchbot_ratelimit_window_calls{endpoint="lineups"} 1`)
}
