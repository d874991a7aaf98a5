package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Typed fetchers. Each returns the decoded payload together with the field
// paths that failed validation; the error is only set for request failures.

func (c *Client) Schedule(ctx context.Context, date time.Time) (ScheduleResponse, []string, error) {
	return fetch[ScheduleResponse](ctx, c, EndpointSchedule, "/scheduled-events/"+date.Format(time.DateOnly), nil, true)
}

func (c *Client) Event(ctx context.Context, id string) (EventResponse, []string, error) {
	return fetch[EventResponse](ctx, c, EndpointEvent, eventPath(id, ""), nil, false)
}

func (c *Client) Lineups(ctx context.Context, id string) (LineupsResponse, []string, error) {
	return fetch[LineupsResponse](ctx, c, EndpointLineups, eventPath(id, "lineups"), nil, true)
}

func (c *Client) Statistics(ctx context.Context, id string) (StatisticsResponse, []string, error) {
	return fetch[StatisticsResponse](ctx, c, EndpointStatistics, eventPath(id, "statistics"), nil, true)
}

func (c *Client) Incidents(ctx context.Context, id string) (IncidentsResponse, []string, error) {
	return fetch[IncidentsResponse](ctx, c, EndpointIncidents, eventPath(id, "incidents"), nil, true)
}

func (c *Client) Broadcasts(ctx context.Context, id string) (BroadcastsResponse, []string, error) {
	return fetch[BroadcastsResponse](ctx, c, EndpointBroadcasts, eventPath(id, "broadcasts"), nil, true)
}

func (c *Client) Form(ctx context.Context, id string) (FormResponse, []string, error) {
	return fetch[FormResponse](ctx, c, EndpointForm, eventPath(id, "pregame-form"), nil, true)
}

func (c *Client) Preview(ctx context.Context, id string) (PreviewResponse, []string, error) {
	return fetch[PreviewResponse](ctx, c, EndpointPreview, eventPath(id, "preview"), nil, true)
}

func fetch[T any](ctx context.Context, c *Client, endpoint, path string, params url.Values, allowMissing bool) (T, []string, error) {
	raw, err := c.Request(ctx, endpoint, path, params, allowMissing)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	v, invalid := Decode[T](c.log, endpoint, raw, allowMissing)
	return v, invalid, nil
}

func eventPath(id, suffix string) string {
	p := fmt.Sprintf("/event/%s", url.PathEscape(id))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}
