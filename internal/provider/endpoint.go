package provider

import (
	"time"

	"matchbot/internal/config"
	"matchbot/internal/ratelimit"
)

// Logical endpoint names.
const (
	EndpointSchedule   = "schedule"
	EndpointEvent      = "event"
	EndpointLineups    = "lineups"
	EndpointStatistics = "statistics"
	EndpointIncidents  = "incidents"
	EndpointBroadcasts = "broadcasts"
	EndpointForm       = "form"
	EndpointPreview    = "preview"
)

// Endpoint is static per-endpoint configuration, fixed at startup.
type Endpoint struct {
	Name        string
	BaseURL     string
	Concurrency int
	Calls       int
	Window      time.Duration
	Timeout     time.Duration
	Persist     bool
}

func (e Endpoint) limits() ratelimit.Limits {
	return ratelimit.Limits{Concurrency: e.Concurrency, Calls: e.Calls, Window: e.Window}
}

// EndpointsFromConfig converts the providers section into Endpoint values.
func EndpointsFromConfig(c config.ProvidersConfig) []Endpoint {
	out := make([]Endpoint, 0, len(c.Endpoints))
	for name, ep := range c.Endpoints {
		out = append(out, Endpoint{
			Name:        name,
			BaseURL:     ep.BaseURL,
			Concurrency: ep.Concurrency,
			Calls:       ep.Calls,
			Window:      ep.WindowDuration(),
			Timeout:     ep.TimeoutDuration(),
			Persist:     ep.Persist,
		})
	}
	return out
}

// NewLimiter builds the rate limiter for a set of endpoints.
func NewLimiter(endpoints []Endpoint) *ratelimit.Limiter {
	m := make(map[string]ratelimit.Limits, len(endpoints))
	for _, e := range endpoints {
		m[e.Name] = e.limits()
	}
	return ratelimit.New(m)
}
