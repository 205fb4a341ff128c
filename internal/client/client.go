// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

// Package client implements the resilient request client used for every
// upstream call the portal makes: request coalescing, retry with
// exponential backoff and jitter, adaptive per-endpoint timeouts, a
// per-origin circuit breaker, and read-through response caching for
// idempotent requests.
//
// Resilience layering, outermost first:
//
//  1. Cache: a fresh cached response short-circuits everything below.
//  2. Coalescing: concurrent identical (method, URL, credential)
//     requests share one network attempt sequence.
//  3. Circuit breaker: a known-bad origin fails fast with
//     *CircuitOpenError before any network I/O.
//  4. Retry loop: transient failures (timeout, connection error, 5xx,
//     429) are retried with capped exponential backoff; other 4xx
//     surface immediately.
//
// The breaker records one failure per exhausted Request call, not one
// per attempt, so a single flaky call cannot open a circuit on its own.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/arcasadev/tidegate/internal/cache"
	"github.com/arcasadev/tidegate/internal/config"
	"github.com/arcasadev/tidegate/internal/logging"
	"github.com/arcasadev/tidegate/internal/metrics"
)

// maxResponseSize caps response body reads to prevent unbounded memory
// allocation on a misbehaving upstream.
const maxResponseSize = 10 << 20 // 10MB

// maxErrorBodySize limits how much of an error response body is kept for
// diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// Options customize a single request. The zero value uses the client
// defaults.
type Options struct {
	// Headers are merged over the client's default headers.
	Headers map[string]string

	// Body is the request body. A byte slice rather than a reader so
	// the body can be replayed on retry.
	Body []byte

	// MaxRetries overrides the client's retry budget when positive.
	MaxRetries int

	// CacheTTL overrides the client's default response TTL when positive.
	CacheTTL time.Duration

	// DisableCache skips the response cache even for idempotent methods.
	DisableCache bool

	// CacheTags and CachePriority are passed through to the cache entry.
	CacheTags     []string
	CachePriority cache.Priority

	// BearerToken overrides the client's configured token.
	BearerToken string
}

// Client is the resilient request client. All methods are safe for
// concurrent use. Construct one per process (or per test) with New;
// breaker and in-flight state are owned by the instance, never global.
type Client struct {
	httpClient *http.Client
	cfg        config.ClientConfig
	cache      *cache.Cache
	breakers   *breakerRegistry
	inflight   singleflight.Group
}

// New creates a resilient client. responseCache may be nil to disable
// response caching entirely.
func New(cfg config.ClientConfig, responseCache *cache.Cache) *Client {
	// MaxRetries is not defaulted here: zero means no retries, and the
	// config layer already seeds 3 for production configs.
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &Client{
		// Per-attempt deadlines come from the adaptive timeout, so the
		// http.Client itself carries no global timeout.
		httpClient: &http.Client{},
		cfg:        cfg,
		cache:      responseCache,
		breakers:   newBreakerRegistry(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// Get performs a resilient GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, rawURL, nil)
}

// Post performs a resilient POST request with a JSON body.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPost, rawURL, &Options{Body: body})
}

// Request performs an HTTP request with coalescing, circuit breaking,
// adaptive timeouts, and bounded retries, returning the raw JSON body.
//
// Concurrent calls with the same (method, URL, credential) share a
// single underlying attempt sequence; the shared flight runs under the
// first caller's context. ctx cancellation is honored at every
// suspension point, including the coalesced wait, so any caller can
// abort its own wait without tearing down the shared flight.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts *Options) (json.RawMessage, error) {
	if opts == nil {
		opts = &Options{}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	origin := u.Scheme + "://" + u.Host

	cacheable := c.cache != nil && !opts.DisableCache &&
		(method == http.MethodGet || method == http.MethodHead)
	cacheKey := c.requestKey(method, rawURL, opts)

	if cacheable {
		if raw, ok := c.cache.Get(cacheKey); ok {
			return raw, nil
		}
	}

	start := time.Now()
	ch := c.inflight.DoChan(cacheKey, func() (interface{}, error) {
		return c.executeWithBreaker(ctx, method, rawURL, u, origin, opts)
	})

	var (
		v      interface{}
		shared bool
	)
	select {
	case <-ctx.Done():
		// The shared flight keeps running under the first caller's
		// context; this waiter just stops waiting for it.
		return nil, ctx.Err()
	case res := <-ch:
		v, err, shared = res.Val, res.Err, res.Shared
	}
	if shared {
		metrics.RequestsCoalescedTotal.Inc()
	}
	metrics.UpstreamRequestDuration.WithLabelValues(method, origin).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequestsTotal.WithLabelValues(method, origin, outcomeLabel(err)).Inc()

	if err != nil {
		return nil, err
	}

	body := v.([]byte)
	if cacheable && len(body) > 0 {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = c.cfg.CacheTTL
		}
		cacheErr := c.cache.Set(cacheKey, json.RawMessage(body), cache.Options{
			TTL:      ttl,
			Priority: opts.CachePriority,
			Tags:     opts.CacheTags,
		})
		if cacheErr != nil {
			logging.Warn().Err(cacheErr).Str("url", rawURL).Msg("response cache write failed")
		}
	}
	return json.RawMessage(body), nil
}

// requestKey builds the key shared by the response cache and the
// in-flight coalescing group. The effective credential is folded in as
// a digest fragment, so callers with different Authorization headers
// never share a cached payload or an in-flight response.
func (c *Client) requestKey(method, rawURL string, opts *Options) string {
	key := method + " " + rawURL

	cred := opts.Headers["Authorization"]
	if cred == "" && opts.BearerToken != "" {
		cred = "Bearer " + opts.BearerToken
	}
	if cred == "" && c.cfg.BearerToken != "" {
		cred = "Bearer " + c.cfg.BearerToken
	}
	if cred == "" {
		return key
	}

	sum := sha256.Sum256([]byte(cred))
	return key + " " + hex.EncodeToString(sum[:8])
}

// executeWithBreaker runs the retry loop under the origin's circuit
// breaker. Breaker rejections map to *CircuitOpenError.
func (c *Client) executeWithBreaker(ctx context.Context, method, rawURL string, u *url.URL, origin string, opts *Options) ([]byte, error) {
	cb := c.breakers.forOrigin(origin)

	body, err := cb.Execute(func() ([]byte, error) {
		return c.attemptWithRetries(ctx, method, rawURL, u, origin, opts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &CircuitOpenError{Origin: origin}
	}
	return body, err
}

// attemptWithRetries issues the request up to 1+maxRetries times.
func (c *Client) attemptWithRetries(ctx context.Context, method, rawURL string, u *url.URL, origin string, opts *Options) ([]byte, error) {
	maxRetries := c.cfg.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}
	class := classifyEndpoint(u.Path)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timeout := adaptiveTimeout(c.cfg.BaseTimeout, class, attempt)
		body, err := c.attempt(ctx, method, rawURL, timeout, opts)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Caller cancellation aborts the sequence outright.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) || attempt == maxRetries {
			break
		}

		delay := backoffDelay(attempt, c.cfg.RetryBaseDelay, c.cfg.RetryMaxDelay)
		logging.Debug().
			Err(err).
			Str("url", rawURL).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retrying upstream request")
		metrics.UpstreamRetriesTotal.WithLabelValues(origin).Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// attempt issues one HTTP request under its adaptive deadline.
func (c *Client) attempt(ctx context.Context, method, rawURL string, timeout time.Duration, opts *Options) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader = http.NoBody
	if len(opts.Body) > 0 {
		reqBody = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if len(opts.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	token := opts.BearerToken
	if token == "" {
		token = c.cfg.BearerToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &TimeoutError{URL: rawURL, Timeout: timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := readBodyForError(resp.Body)
		return nil, &HTTPError{Status: resp.StatusCode, URL: rawURL, Body: string(snippet)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(body) > 0 && !json.Valid(body) {
		return nil, fmt.Errorf("response from %s is not valid JSON", rawURL)
	}
	return body, nil
}

// readBodyForError reads a response body for error reporting (max 64KB).
// Uses io.LimitReader to prevent unbounded allocation on large error
// responses.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
