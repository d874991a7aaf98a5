package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"matchbot/internal/match"
	"matchbot/internal/provider"
	"matchbot/internal/registry"
	logx "matchbot/pkg/logx"
)

// ErrEventUnavailable is returned when the core event payload could not be
// fetched. Without it nothing can be rendered.
var ErrEventUnavailable = errors.New("orchestrator: event payload unavailable")

// Source builds a fresh Event for one phase.
type Source interface {
	Fetch(ctx context.Context, id string, phase registry.Phase) (*match.Event, error)
}

// Fetcher is the typed provider surface. *provider.Client implements it.
type Fetcher interface {
	Event(ctx context.Context, id string) (provider.EventResponse, []string, error)
	Lineups(ctx context.Context, id string) (provider.LineupsResponse, []string, error)
	Statistics(ctx context.Context, id string) (provider.StatisticsResponse, []string, error)
	Incidents(ctx context.Context, id string) (provider.IncidentsResponse, []string, error)
	Broadcasts(ctx context.Context, id string) (provider.BroadcastsResponse, []string, error)
	Form(ctx context.Context, id string) (provider.FormResponse, []string, error)
	Preview(ctx context.Context, id string) (provider.PreviewResponse, []string, error)
}

// ProviderSource fans out the per-phase calls in parallel and projects
// whatever succeeded. Failed optional calls are listed in Event.FetchErrors.
type ProviderSource struct {
	f   Fetcher
	log logx.Logger
}

func NewProviderSource(f Fetcher, log logx.Logger) *ProviderSource {
	return &ProviderSource{f: f, log: log.With(logx.String("comp", "source"))}
}

func (s *ProviderSource) calls(id string, phase registry.Phase) []provider.Call {
	bind := func(name string) provider.Call {
		switch name {
		case provider.EndpointEvent:
			return provider.Bind(name, func(ctx context.Context) (provider.EventResponse, []string, error) { return s.f.Event(ctx, id) })
		case provider.EndpointLineups:
			return provider.Bind(name, func(ctx context.Context) (provider.LineupsResponse, []string, error) { return s.f.Lineups(ctx, id) })
		case provider.EndpointStatistics:
			return provider.Bind(name, func(ctx context.Context) (provider.StatisticsResponse, []string, error) {
				return s.f.Statistics(ctx, id)
			})
		case provider.EndpointIncidents:
			return provider.Bind(name, func(ctx context.Context) (provider.IncidentsResponse, []string, error) {
				return s.f.Incidents(ctx, id)
			})
		case provider.EndpointBroadcasts:
			return provider.Bind(name, func(ctx context.Context) (provider.BroadcastsResponse, []string, error) {
				return s.f.Broadcasts(ctx, id)
			})
		case provider.EndpointForm:
			return provider.Bind(name, func(ctx context.Context) (provider.FormResponse, []string, error) { return s.f.Form(ctx, id) })
		default:
			return provider.Bind(name, func(ctx context.Context) (provider.PreviewResponse, []string, error) { return s.f.Preview(ctx, id) })
		}
	}

	var names []string
	switch phase {
	case registry.PhasePre:
		names = []string{provider.EndpointEvent, provider.EndpointLineups, provider.EndpointForm, provider.EndpointPreview, provider.EndpointBroadcasts}
	case registry.PhaseLive:
		names = []string{provider.EndpointEvent, provider.EndpointLineups, provider.EndpointIncidents, provider.EndpointStatistics, provider.EndpointBroadcasts}
	default:
		names = []string{provider.EndpointEvent, provider.EndpointIncidents, provider.EndpointStatistics}
	}
	out := make([]provider.Call, len(names))
	for i, n := range names {
		out[i] = bind(n)
	}
	return out
}

func (s *ProviderSource) Fetch(ctx context.Context, id string, phase registry.Phase) (*match.Event, error) {
	agg := provider.FetchAll(ctx, s.calls(id, phase)...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ev, ok := provider.Result[provider.Fetched[provider.EventResponse]](agg, provider.EndpointEvent)
	if !ok {
		for _, ce := range agg.Errors {
			if ce.Name == provider.EndpointEvent {
				return nil, fmt.Errorf("%w: %w", ErrEventUnavailable, ce.Err)
			}
		}
		return nil, ErrEventUnavailable
	}

	e := match.New(id)
	e.ProjectEvent(ev.Value.Event)
	e.AddInvalid(provider.EndpointEvent, ev.Invalid)
	project(agg, e, provider.EndpointLineups, e.ProjectLineups)
	project(agg, e, provider.EndpointStatistics, e.ProjectStatistics)
	project(agg, e, provider.EndpointIncidents, e.ProjectIncidents)
	project(agg, e, provider.EndpointBroadcasts, e.ProjectBroadcasts)
	project(agg, e, provider.EndpointForm, e.ProjectForm)
	project(agg, e, provider.EndpointPreview, e.ProjectPreview)

	for _, ce := range agg.Errors {
		e.FetchErrors = append(e.FetchErrors, ce.Name)
		s.log.Warn("partial fetch failure",
			logx.String("event", id),
			logx.String("phase", string(phase)),
			logx.String("endpoint", ce.Name),
			logx.Err(ce.Err),
		)
	}
	return e, nil
}

func project[T any](agg provider.Aggregate, e *match.Event, name string, fn func(T)) {
	v, ok := provider.Result[provider.Fetched[T]](agg, name)
	if !ok {
		return
	}
	fn(v.Value)
	e.AddInvalid(name, v.Invalid)
}
