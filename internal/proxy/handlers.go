// Package proxy serves a caching HTTP facade over one upstream ArcGIS
// service: task endpoints are forwarded, responses are cached in Redis, and
// Kafka events drop cached entries when the service's data changes.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/muimsd/esri-go/internal/config"
	"github.com/muimsd/esri-go/internal/observability"
	"github.com/muimsd/esri-go/internal/proxycache"
	"github.com/muimsd/esri-go/pkg/task"
)

// endpoints the proxy will forward. Anything else 404s without touching the
// upstream.
var forwardable = map[string]bool{
	"query":    true,
	"identify": true,
	"find":     true,
	"export":   true,
	"legend":   true,
	"metadata": true,
}

type Handler struct {
	cfg    config.Config
	log    zerolog.Logger
	client *http.Client
	store  *proxycache.Store // nil runs cacheless
}

func NewHandler(cfg config.Config, log zerolog.Logger, client *http.Client, store *proxycache.Store) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{cfg: cfg, log: log, client: client, store: store}
}

// Forward serves one upstream endpoint, caching successful responses.
func (h *Handler) Forward(endpoint string) http.HandlerFunc {
	return httpMetrics("/"+endpoint, func(w http.ResponseWriter, r *http.Request) {
		if !forwardable[endpoint] {
			http.NotFound(w, r)
			return
		}
		params := r.URL.Query()
		upstreamEndpoint := endpoint
		switch endpoint {
		case "metadata":
			// the service document lives at the service root
			upstreamEndpoint = ""
			params.Set("f", "json")
		case "export":
			if params.Get("f") == "" {
				params.Set("f", "image")
			}
		default:
			if params.Get("f") == "" {
				params.Set("f", "json")
			}
		}

		key := proxycache.Key(h.cfg.ServiceURL, endpoint, params.Encode())
		if e, ok := h.cacheGet(r.Context(), key); ok {
			writeEntry(w, e, "HIT")
			return
		}

		upstream := task.URL(h.cfg.ServiceURL, upstreamEndpoint, params)
		body, ct, err := task.GetBytes(r.Context(), h.client, upstream)
		if err != nil {
			h.writeUpstreamError(w, endpoint, err)
			return
		}

		e := proxycache.Entry{ContentType: ct, Body: body}
		h.cachePut(r.Context(), key, endpoint, e)
		writeEntry(w, e, "MISS")
	})
}

func (h *Handler) cacheGet(ctx context.Context, key string) (proxycache.Entry, bool) {
	if h.store == nil {
		return proxycache.Entry{}, false
	}
	opCtx, cancel := context.WithTimeout(ctx, h.cfg.CacheOpTimeout)
	defer cancel()
	e, ok, err := h.store.Get(opCtx, key)
	if err != nil {
		h.log.Warn().Err(err).Msg("cache get failed, forwarding upstream")
		return proxycache.Entry{}, false
	}
	if ok {
		observability.IncProxyCacheHit()
	} else {
		observability.IncProxyCacheMiss()
	}
	return e, ok
}

func (h *Handler) cachePut(ctx context.Context, key, endpoint string, e proxycache.Entry) {
	if h.store == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, h.cfg.CacheOpTimeout)
	defer cancel()
	if err := h.store.Set(opCtx, h.cfg.ServiceURL, key, e, h.cfg.TTLFor(endpoint)); err != nil {
		h.log.Warn().Err(err).Msg("cache set failed")
	}
}

func writeEntry(w http.ResponseWriter, e proxycache.Entry, result string) {
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.Header().Set("X-Cache", result)
	_, _ = w.Write(e.Body)
}

// writeUpstreamError maps upstream failures onto proxy responses: an ArcGIS
// error envelope becomes a 502 with the server's message, a bad upstream
// status is mirrored, anything else is a 502.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, endpoint string, err error) {
	var serverErr *task.ServerError
	var transportErr *task.TransportError
	switch {
	case errors.As(err, &serverErr):
		h.log.Warn().Err(err).Str("endpoint", endpoint).Msg("upstream arcgis error")
		writeJSONError(w, http.StatusBadGateway, serverErr.Message)
	case errors.As(err, &transportErr):
		h.log.Warn().Err(err).Str("endpoint", endpoint).Msg("upstream status error")
		writeJSONError(w, transportErr.Status, "upstream error")
	default:
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("upstream fetch failed")
		writeJSONError(w, http.StatusBadGateway, "upstream unreachable")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}

// Liveness always succeeds once the process serves traffic.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessChecker reports whether a dependency is ready to serve.
type ReadinessChecker func(ctx context.Context) error

// Readiness aggregates dependency checks into one endpoint.
func Readiness(checks map[string]ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := url.Values{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failures.Set(name, err.Error())
			}
		}
		if len(failures) > 0 {
			writeJSONError(w, http.StatusServiceUnavailable, failures.Encode())
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
