package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllPartialFailure(t *testing.T) {
	t.Parallel()
	var statsHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/statistics"):
			statsHits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasSuffix(r.URL.Path, "/lineups"):
			_, _ = w.Write([]byte(`{"confirmed":true,"home":{"players":[{"player":{"name":"X"}}]},"away":{"players":[]}}`))
		case strings.HasSuffix(r.URL.Path, "/incidents"):
			_, _ = w.Write([]byte(`{"incidents":[{"incidentType":"goal","time":12,"isHome":true}]}`))
		default:
			_, _ = w.Write([]byte(eventJSON))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ctx := context.Background()
	agg := FetchAll(ctx,
		Bind(EndpointEvent, func(ctx context.Context) (EventResponse, []string, error) { return c.Event(ctx, "1") }),
		Bind(EndpointLineups, func(ctx context.Context) (LineupsResponse, []string, error) { return c.Lineups(ctx, "1") }),
		Bind(EndpointStatistics, func(ctx context.Context) (StatisticsResponse, []string, error) { return c.Statistics(ctx, "1") }),
		Bind(EndpointIncidents, func(ctx context.Context) (IncidentsResponse, []string, error) { return c.Incidents(ctx, "1") }),
	)

	require.Len(t, agg.Results, 3)
	require.Len(t, agg.Errors, 1)
	assert.Equal(t, EndpointStatistics, agg.Errors[0].Name)
	assert.ErrorIs(t, agg.Errors[0], ErrServer)
	assert.Equal(t, int32(3), statsHits.Load())
	assert.False(t, agg.OK(EndpointStatistics))

	ev, ok := Result[Fetched[EventResponse]](agg, EndpointEvent)
	require.True(t, ok)
	assert.Equal(t, "B", ev.Value.Event.AwayTeam.Name)

	inc, ok := Result[Fetched[IncidentsResponse]](agg, EndpointIncidents)
	require.True(t, ok)
	require.Len(t, inc.Value.Incidents, 1)
	assert.Equal(t, "goal", inc.Value.Incidents[0].IncidentType)

	require.Len(t, agg.Descriptions(), 1)
	assert.Contains(t, agg.Descriptions()[0], "statistics")
}

func TestFetchAllRecoversPanics(t *testing.T) {
	t.Parallel()
	agg := FetchAll(context.Background(),
		Call{Name: "ok", Fn: func(context.Context) (any, error) { return 1, nil }},
		Call{Name: "panics", Fn: func(context.Context) (any, error) { panic("kaboom") }},
		Call{Name: "fails", Fn: func(context.Context) (any, error) { return nil, errors.New("nope") }},
	)

	v, ok := Result[int](agg, "ok")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.Len(t, agg.Errors, 2)
	assert.Equal(t, "fails", agg.Errors[0].Name)
	assert.Equal(t, "panics", agg.Errors[1].Name)
	assert.Contains(t, agg.Errors[1].Error(), "kaboom")
}

func TestTypedCall(t *testing.T) {
	t.Parallel()
	agg := FetchAll(context.Background(),
		Typed("n", func(context.Context) (string, error) { return "x", nil }),
	)
	v, ok := Result[string](agg, "n")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = Result[int](agg, "n")
	assert.False(t, ok)
}
