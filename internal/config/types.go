package config

// Config is the whole matchbot configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Omitted fields fall back to the defaults documented on each section.
type Config struct {
	Providers    ProvidersConfig    `json:"providers"`
	Registry     RegistryConfig     `json:"registry"`
	Publisher    PublisherConfig    `json:"publisher"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Telegram     TelegramConfig     `json:"telegram"`
	Notify       NotifyConfig       `json:"notify"`
	Logging      LoggingConfig      `json:"logging"`
	Cache        CacheConfig        `json:"cache"`
	HTTP         HTTPConfig         `json:"http"`
}

// ProvidersConfig describes the upstream data providers.
//
// Defaults:
//   - api_key_header: "X-API-Key"
//   - max_attempts: 3
//   - retry_base: "1s"
//   - retry_max_delay: "10s"
type ProvidersConfig struct {
	// APIKey is sent on every request when set. Prefer MATCHBOT_API_KEY.
	APIKey       string `json:"api_key,omitempty"`
	APIKeyHeader string `json:"api_key_header,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`

	// DumpDir receives successful payloads of endpoints with persist=true.
	DumpDir string `json:"dump_dir,omitempty"`

	MaxAttempts   int    `json:"max_attempts,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`

	Endpoints map[string]EndpointConfig `json:"endpoints"`
}

// EndpointConfig is static per-endpoint configuration. It is not hot-reloaded.
type EndpointConfig struct {
	BaseURL     string `json:"base_url"`
	Concurrency int    `json:"concurrency,omitempty"` // default 1
	Calls       int    `json:"calls,omitempty"`       // 0 disables the rolling quota
	Window      string `json:"window,omitempty"`
	Timeout     string `json:"timeout,omitempty"` // default 15s
	Persist     bool   `json:"persist,omitempty"`
}

type RegistryConfig struct {
	Path string `json:"path,omitempty"` // default ./threads.json
}

// PublisherConfig controls thread submission.
//
// Defaults: settle "5s", retry_max 3, retry_base "2s".
type PublisherConfig struct {
	Board     string `json:"board"`
	Settle    string `json:"settle,omitempty"`
	RetryMax  int    `json:"retry_max,omitempty"`
	RetryBase string `json:"retry_base,omitempty"`
}

type OrchestratorConfig struct {
	// Interval between live edits. Default "60s".
	Interval string `json:"interval,omitempty"`
	// Post controls whether the live loop publishes the post thread once the
	// event is final. Omitted means true.
	Post *bool `json:"post,omitempty"`
}

func (c OrchestratorConfig) PostEnabled() bool { return c.Post == nil || *c.Post }

// SchedulerConfig controls event discovery and phase timers.
//
// Defaults:
//   - discovery: "0 6 * * *"
//   - pre_offset: "24h"
//   - live_offset: "30m"
//   - lookahead_days: 2
type SchedulerConfig struct {
	Enabled       bool     `json:"enabled"`
	Discovery     string   `json:"discovery,omitempty"`
	Timezone      string   `json:"timezone,omitempty"`
	PreOffset     string   `json:"pre_offset,omitempty"`
	LiveOffset    string   `json:"live_offset,omitempty"`
	LookaheadDays int      `json:"lookahead_days,omitempty"`
	Competitions  []string `json:"competitions,omitempty"`
}

type TelegramConfig struct {
	// Token may be supplied through MATCHBOT_TELEGRAM_TOKEN.
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Commands enables the operator commands (/threads, /stream). Only
	// OwnerUserIDs may use them.
	Commands     bool    `json:"commands,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

// NotifyConfig controls operator notifications.
//
// Defaults: queue_size 64, rate_per_sec 1, timeout "10s".
type NotifyConfig struct {
	Enabled    bool           `json:"enabled"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	Telegram   NotifyTelegram `json:"telegram,omitempty"`
	QueueSize  int            `json:"queue_size,omitempty"`
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	Timeout    string         `json:"timeout,omitempty"`
}

type NotifyTelegram struct {
	Enabled  bool  `json:"enabled"`
	ChatID   int64 `json:"chat_id,omitempty"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CacheConfig controls the local SQLite match metadata cache.
//
// Example:
//
//	"cache": { "enabled": true, "path": "./matchbot.db" }
type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig controls the read-only schedule page and metrics endpoint.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:8080
}
