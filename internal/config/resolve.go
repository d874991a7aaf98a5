package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultRegistryPath = "./threads.json"
	DefaultCachePath    = "./matchbot.db"
	DefaultHTTPAddr     = "127.0.0.1:8080"
	DefaultDiscovery    = "0 6 * * *"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks every duration and the provider endpoints.
// Accessors below assume a validated config and fall back to defaults otherwise.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error

	durations := map[string]string{
		"providers.retry_base":      cfg.Providers.RetryBase,
		"providers.retry_max_delay": cfg.Providers.RetryMaxDelay,
		"publisher.settle":          cfg.Publisher.Settle,
		"publisher.retry_base":      cfg.Publisher.RetryBase,
		"orchestrator.interval":     cfg.Orchestrator.Interval,
		"scheduler.pre_offset":      cfg.Scheduler.PreOffset,
		"scheduler.live_offset":     cfg.Scheduler.LiveOffset,
		"telegram.poll_timeout":     cfg.Telegram.PollTimeout,
		"notify.timeout":            cfg.Notify.Timeout,
		"cache.busy_timeout":        cfg.Cache.BusyTimeout,
	}
	for name, ep := range cfg.Providers.Endpoints {
		durations["providers.endpoints."+name+".window"] = ep.Window
		durations["providers.endpoints."+name+".timeout"] = ep.Timeout
	}
	for _, path := range sortedKeys(durations) {
		if _, err := ParseDurationField(path, durations[path]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(cfg.Providers.Endpoints) == 0 {
		errs = append(errs, errors.New("providers.endpoints: at least one endpoint is required"))
	}
	for _, name := range sortedKeys(cfg.Providers.Endpoints) {
		ep := cfg.Providers.Endpoints[name]
		u, err := url.Parse(strings.TrimSpace(ep.BaseURL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("providers.endpoints.%s.base_url: must be an absolute URL", name))
		}
		if ep.Concurrency < 0 || ep.Calls < 0 {
			errs = append(errs, fmt.Errorf("providers.endpoints.%s: limits must be >= 0", name))
		}
	}
	if cfg.Providers.MaxAttempts < 0 || cfg.Publisher.RetryMax < 0 {
		errs = append(errs, errors.New("retry ceilings must be >= 0"))
	}
	if cfg.Scheduler.LookaheadDays < 0 {
		errs = append(errs, errors.New("scheduler.lookahead_days: must be >= 0"))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (c ProvidersConfig) Attempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func (c ProvidersConfig) Backoff() (base, max time.Duration) {
	return durationOr(c.RetryBase, time.Second), durationOr(c.RetryMaxDelay, 10*time.Second)
}

func (c ProvidersConfig) HeaderName() string {
	if h := strings.TrimSpace(c.APIKeyHeader); h != "" {
		return h
	}
	return "X-API-Key"
}

func (c EndpointConfig) WindowDuration() time.Duration  { return durationOr(c.Window, 0) }
func (c EndpointConfig) TimeoutDuration() time.Duration { return durationOr(c.Timeout, 15*time.Second) }

func (c RegistryConfig) FilePath() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	return DefaultRegistryPath
}

func (c PublisherConfig) SettleDelay() time.Duration { return durationOr(c.Settle, 5*time.Second) }
func (c PublisherConfig) Backoff() time.Duration     { return durationOr(c.RetryBase, 2*time.Second) }

func (c PublisherConfig) Attempts() int {
	if c.RetryMax <= 0 {
		return 3
	}
	return c.RetryMax
}

func (c OrchestratorConfig) PollInterval() time.Duration {
	return durationOr(c.Interval, 60*time.Second)
}

func (c SchedulerConfig) DiscoverySpec() string {
	if s := strings.TrimSpace(c.Discovery); s != "" {
		return s
	}
	return DefaultDiscovery
}

// Offsets returns how long before kickoff the pre and live phases start.
func (c SchedulerConfig) Offsets() (pre, live time.Duration) {
	return durationOr(c.PreOffset, 24*time.Hour), durationOr(c.LiveOffset, 30*time.Minute)
}

func (c SchedulerConfig) Days() int {
	if c.LookaheadDays <= 0 {
		return 2
	}
	return c.LookaheadDays
}

func (c SchedulerConfig) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c TelegramConfig) Poll() time.Duration { return durationOr(c.PollTimeout, 10*time.Second) }

func (c NotifyConfig) Queue() int {
	if c.QueueSize <= 0 {
		return 64
	}
	return c.QueueSize
}

func (c NotifyConfig) Rate() int {
	if c.RatePerSec <= 0 {
		return 1
	}
	return c.RatePerSec
}

func (c NotifyConfig) SendTimeout() time.Duration { return durationOr(c.Timeout, 10*time.Second) }

func (c CacheConfig) FilePath() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	return DefaultCachePath
}

func (c CacheConfig) Busy() time.Duration { return durationOr(c.BusyTimeout, 5*time.Second) }

func (c HTTPConfig) ListenAddr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultHTTPAddr
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
