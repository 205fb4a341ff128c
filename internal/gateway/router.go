// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcasadev/tidegate/internal/client"
	"github.com/arcasadev/tidegate/internal/config"
	"github.com/arcasadev/tidegate/internal/logging"
	"github.com/arcasadev/tidegate/internal/metrics"
)

// maxProxyBodySize bounds request bodies accepted for forwarding.
const maxProxyBodySize = 10 * 1024 * 1024 // 10MB

// forwardedHeaders are the only inbound headers passed to backends.
// Everything else stays at the edge.
var forwardedHeaders = []string{"Authorization", "Content-Type", "Accept", "Accept-Encoding"}

// Router is the gateway's HTTP surface: the /api/{service}/* proxy plus
// health and metrics endpoints.
type Router struct {
	cfg      config.GatewayConfig
	registry *Registry
	client   *client.Client
}

// NewRouter wires the proxy over the given registry and resilient client.
func NewRouter(cfg config.GatewayConfig, registry *Registry, c *client.Client) *Router {
	return &Router{cfg: cfg, registry: registry, client: c}
}

// Handler assembles the chi router with the middleware stack.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if !rt.cfg.RateLimitDisabled {
		r.Use(httprate.Limit(
			rt.cfg.RateLimitReqs,
			rt.cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
	}

	r.Get("/health", rt.health)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/api/{service}/*", rt.proxy)

	return r
}

// requestID assigns a correlation ID to every request, honoring an
// inbound X-Request-ID so IDs survive hops between gateways.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": rt.registry.Snapshot(),
	})
}

func (rt *Router) proxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	service := chi.URLParam(r, "service")

	status, err := rt.forward(w, r, service)
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("service", service).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Err(err).
			Msg("Proxy request failed")
	}

	metrics.GatewayRequestsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	metrics.GatewayRequestDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

// forward resolves a backend, relays the request through the resilient
// client, and writes the response. It returns the status written so the
// caller can record metrics.
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, service string) (int, error) {
	backend, err := rt.registry.Select(service)
	switch {
	case errors.Is(err, ErrUnknownService):
		writeError(w, http.StatusNotFound, "unknown service: "+service)
		return http.StatusNotFound, err
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "no backends available for "+service)
		return http.StatusServiceUnavailable, err
	}

	target := backend + "/" + chi.URLParam(r, "*")
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxProxyBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return http.StatusBadRequest, err
		}
	}

	headers := make(map[string]string, len(forwardedHeaders))
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			headers[h] = v
		}
	}

	raw, err := rt.client.Request(r.Context(), r.Method, target, &client.Options{
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return writeUpstreamError(w, err), err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
	return http.StatusOK, nil
}

// writeUpstreamError maps the client's typed errors onto gateway status
// codes: open breaker and timeouts become 503/504, backend HTTP errors
// pass their status through, and connection failures become 502.
func writeUpstreamError(w http.ResponseWriter, err error) int {
	var (
		openErr    *client.CircuitOpenError
		timeoutErr *client.TimeoutError
		httpErr    *client.HTTPError
	)

	switch {
	case errors.As(err, &openErr):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusServiceUnavailable, "backend temporarily unavailable")
		return http.StatusServiceUnavailable
	case errors.As(err, &timeoutErr):
		writeError(w, http.StatusGatewayTimeout, "backend timed out")
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr):
		writeError(w, httpErr.Status, "backend error")
		return httpErr.Status
	case errors.Is(err, context.Canceled):
		// Client went away; 499 in nginx convention, but stdlib has no
		// constant for it and the write is usually unreachable anyway.
		writeError(w, http.StatusBadGateway, "request cancelled")
		return http.StatusBadGateway
	default:
		writeError(w, http.StatusBadGateway, "backend unreachable")
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
