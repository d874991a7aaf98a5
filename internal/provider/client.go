package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"matchbot/internal/ratelimit"
	logx "matchbot/pkg/logx"
)

const maxBody = 8 << 20

// Observer receives one call per attempt. internal/metrics implements it.
type Observer interface {
	ObserveRequest(endpoint string, kind Kind, d time.Duration)
}

type Options struct {
	Endpoints []Endpoint
	// Limiter defaults to one built from Endpoints.
	Limiter *ratelimit.Limiter
	HTTP    *http.Client

	MaxAttempts   int           // default 3
	RetryBase     time.Duration // default 1s
	RetryMaxDelay time.Duration // default 10s

	APIKey       string
	APIKeyHeader string
	UserAgent    string
	DumpDir      string

	Observer Observer
	Log      logx.Logger
}

// Client issues rate-limited GET requests against named endpoints.
type Client struct {
	endpoints map[string]Endpoint
	limiter   *ratelimit.Limiter
	http      *http.Client

	attempts  int
	retryBase time.Duration
	retryMax  time.Duration

	apiKey    string
	apiHeader string
	userAgent string
	dumpDir   string

	obs Observer
	log logx.Logger
}

func New(opts Options) *Client {
	c := &Client{
		endpoints: make(map[string]Endpoint, len(opts.Endpoints)),
		limiter:   opts.Limiter,
		http:      opts.HTTP,
		attempts:  opts.MaxAttempts,
		retryBase: opts.RetryBase,
		retryMax:  opts.RetryMaxDelay,
		apiKey:    strings.TrimSpace(opts.APIKey),
		apiHeader: strings.TrimSpace(opts.APIKeyHeader),
		userAgent: strings.TrimSpace(opts.UserAgent),
		dumpDir:   strings.TrimSpace(opts.DumpDir),
		obs:       opts.Observer,
		log:       opts.Log.With(logx.String("comp", "provider")),
	}
	for _, e := range opts.Endpoints {
		c.endpoints[e.Name] = e
	}
	if c.limiter == nil {
		c.limiter = NewLimiter(opts.Endpoints)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.retryBase <= 0 {
		c.retryBase = time.Second
	}
	if c.retryMax <= 0 {
		c.retryMax = 10 * time.Second
	}
	if c.apiHeader == "" {
		c.apiHeader = "X-API-Key"
	}
	if c.userAgent == "" {
		c.userAgent = "matchbot/1"
	}
	return c
}

// Request performs GET <base><path>?<params> on endpoint.
//
// Server errors and timeouts are retried with exponential backoff up to the
// attempt ceiling. Client errors and rate limiting return immediately. A 204,
// or a 404 when allowMissing is set, yields (nil, nil).
func (c *Client) Request(ctx context.Context, endpoint, path string, params url.Values, allowMissing bool) ([]byte, error) {
	ep, ok := c.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}

	var last *Error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		out, err := c.attempt(ctx, ep, path, params, allowMissing)
		if err != nil {
			return nil, err
		}
		switch out.Kind {
		case KindSuccess:
			if ep.Persist && len(out.Payload) > 0 {
				c.persist(ep.Name, path, params, out.Payload)
			}
			return out.Payload, nil
		case KindClientError, KindRateLimited:
			e := out.err(ep.Name, path)
			e.Attempts = attempt
			return nil, e
		}

		last = out.err(ep.Name, path)
		last.Attempts = attempt
		c.log.Warn("provider request failed; will retry",
			logx.String("endpoint", ep.Name),
			logx.String("path", path),
			logx.String("outcome", out.Kind.String()),
			logx.Int("status", out.Status),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", c.attempts),
		)
	}
	return nil, last
}

// attempt runs one guarded GET. The returned error is only set when the
// caller's context ended or the request could not be built.
func (c *Client) attempt(ctx context.Context, ep Endpoint, path string, params url.Values, allowMissing bool) (Outcome, error) {
	guard, err := c.limiter.Acquire(ctx, ep.Name)
	if err != nil {
		return Outcome{}, err
	}
	defer guard.Release()

	reqCtx := ctx
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, buildURL(ep.BaseURL, path, params), nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set(c.apiHeader, c.apiKey)
	}

	start := time.Now()
	out, err := c.do(req, allowMissing)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		out = transportOutcome(err)
		c.log.Debug("provider transport error", logx.String("endpoint", ep.Name), logx.Err(err))
	}
	if c.obs != nil {
		c.obs.ObserveRequest(ep.Name, out.Kind, time.Since(start))
	}
	return out, nil
}

func (c *Client) do(req *http.Request, allowMissing bool) (Outcome, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Outcome{}, err
	}
	return classify(resp.StatusCode, body, allowMissing), nil
}

func transportOutcome(err error) Outcome {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return Outcome{Kind: KindTimeout}
	}
	return Outcome{Kind: KindServerError, Payload: []byte(err.Error())}
}

// backoff returns base * 2^(n-1), capped at retryMax.
func (c *Client) backoff(n int) time.Duration {
	d := c.retryBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.retryMax {
			return c.retryMax
		}
	}
	return min(d, c.retryMax)
}

func buildURL(base, path string, params url.Values) string {
	u := strings.TrimRight(base, "/")
	if path != "" {
		u += "/" + strings.TrimLeft(path, "/")
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// dumpPath maps a request to <dump_dir>/<endpoint>/<sanitized path>.json.
func dumpPath(dir, endpoint, path string, params url.Values) string {
	name := strings.Trim(path, "/")
	if len(params) > 0 {
		name += "_" + params.Encode()
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if name == "" {
		name = "index"
	}
	return filepath.Join(dir, endpoint, name+".json")
}

// persist writes a diagnostic copy of a successful payload. Failures are logged only.
func (c *Client) persist(endpoint, path string, params url.Values, body []byte) {
	if c.dumpDir == "" {
		return
	}
	p := dumpPath(c.dumpDir, endpoint, path, params)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		c.log.Warn("payload dump failed", logx.String("path", p), logx.Err(err))
		return
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		c.log.Warn("payload dump failed", logx.String("path", p), logx.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
