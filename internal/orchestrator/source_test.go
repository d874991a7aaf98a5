package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbot/internal/provider"
	"matchbot/internal/registry"
	logx "matchbot/pkg/logx"
)

type fakeFetcher struct {
	eventErr error
	statsErr error
}

func (f fakeFetcher) Event(context.Context, string) (provider.EventResponse, []string, error) {
	if f.eventErr != nil {
		return provider.EventResponse{}, nil, f.eventErr
	}
	var r provider.EventResponse
	r.Event.ID = 11
	r.Event.HomeTeam.Name = "Roma"
	r.Event.AwayTeam.Name = "Lazio"
	r.Event.Status.Type = "inprogress"
	return r, []string{"event.venue.name"}, nil
}

func (fakeFetcher) Lineups(context.Context, string) (provider.LineupsResponse, []string, error) {
	return provider.LineupsResponse{Confirmed: true}, nil, nil
}

func (f fakeFetcher) Statistics(context.Context, string) (provider.StatisticsResponse, []string, error) {
	return provider.StatisticsResponse{}, nil, f.statsErr
}

func (fakeFetcher) Incidents(context.Context, string) (provider.IncidentsResponse, []string, error) {
	return provider.IncidentsResponse{Incidents: []provider.Incident{{IncidentType: "goal", Time: 9, IsHome: true}}}, nil, nil
}

func (fakeFetcher) Broadcasts(context.Context, string) (provider.BroadcastsResponse, []string, error) {
	return provider.BroadcastsResponse{}, nil, nil
}

func (fakeFetcher) Form(context.Context, string) (provider.FormResponse, []string, error) {
	panic("form is not part of the live phase")
}

func (fakeFetcher) Preview(context.Context, string) (provider.PreviewResponse, []string, error) {
	panic("preview is not part of the live phase")
}

func TestProviderSourceProjectsPartialResults(t *testing.T) {
	t.Parallel()
	s := NewProviderSource(fakeFetcher{statsErr: &provider.Error{Kind: provider.KindServerError, Endpoint: "statistics", Status: 503}}, logx.Nop())

	e, err := s.Fetch(context.Background(), "11", registry.PhaseLive)
	require.NoError(t, err)
	assert.Equal(t, "Roma", e.Home.Name)
	assert.True(t, e.Started)
	assert.True(t, e.Confirmed)
	assert.Len(t, e.Feed, 1)
	assert.Equal(t, []string{"statistics"}, e.FetchErrors)
	assert.Equal(t, []string{"event:event.venue.name"}, e.Invalid)
}

func TestProviderSourceNeedsEvent(t *testing.T) {
	t.Parallel()
	down := errors.New("down")
	s := NewProviderSource(fakeFetcher{eventErr: down}, logx.Nop())
	_, err := s.Fetch(context.Background(), "11", registry.PhasePost)
	require.ErrorIs(t, err, ErrEventUnavailable)
	require.ErrorIs(t, err, down)
}
