// Package gateway wires the HTTP surface of the request gateway.
//
// DESIGN: Two request handlers carry all the real work:
//   - handleChatCompletion(): resolve provider, inject system prompt, relay
//     the upstream token stream
//   - handleDeepResearch():   authenticate, enforce quota, run web search
//
// Health, stats and middleware (CORS, request id, rate limit) surround them.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumenchat/request-gateway/internal/config"
	"github.com/lumenchat/request-gateway/internal/gwerr"
	"github.com/lumenchat/request-gateway/internal/monitoring"
	"github.com/lumenchat/request-gateway/internal/providers"
	"github.com/lumenchat/request-gateway/internal/quota"
	"github.com/lumenchat/request-gateway/internal/search"
)

// IdentityResolver resolves a bearer token to a user id.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}

// Searcher runs one web-search query.
type Searcher interface {
	Search(ctx context.Context, query string) (*search.Response, error)
}

// Deps are the gateway's injected collaborators.
type Deps struct {
	Registry *providers.Registry
	Ledger   *quota.Ledger
	Identity IdentityResolver
	Searcher Searcher
	Tracker  *monitoring.Tracker
}

// Gateway is the request gateway. All fields are set at construction and
// read-only afterwards; per-request state lives on the stack.
type Gateway struct {
	config   *config.Config
	registry *providers.Registry
	ledger   *quota.Ledger
	identity IdentityResolver
	searcher Searcher
	tracker  *monitoring.Tracker
	metrics  *monitoring.MetricsCollector
	limiter  *ipRateLimiter

	httpClient *http.Client
}

// New constructs a gateway from configuration and collaborators.
func New(cfg *config.Config, deps Deps) *Gateway {
	g := &Gateway{
		config:   cfg,
		registry: deps.Registry,
		ledger:   deps.Ledger,
		identity: deps.Identity,
		searcher: deps.Searcher,
		tracker:  deps.Tracker,
		metrics:  monitoring.NewMetricsCollector(),
		httpClient: &http.Client{
			// No overall client timeout: streams may legitimately run for
			// minutes. The header timeout bounds how long a provider may
			// sit on a request before the first byte.
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Chat.UpstreamTimeout,
				Proxy:                 http.ProxyFromEnvironment,
			},
		},
	}
	if cfg.RateLimit.Enabled {
		g.limiter = newIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	return g
}

// Metrics exposes the collector (for the stats handler and tests).
func (g *Gateway) Metrics() *monitoring.MetricsCollector { return g.metrics }

// Handler returns the gateway's HTTP handler with middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat-completion", g.handleChatCompletion)
	mux.HandleFunc("POST /deep-research", g.handleDeepResearch)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /stats", g.handleStats)

	var h http.Handler = mux
	if g.limiter != nil {
		h = g.limiter.middleware(h)
	}
	h = requestIDMiddleware(h)
	h = corsMiddleware(h)
	return h
}

// writeError writes a JSON error response for a typed gateway failure.
// Expected user-facing conditions are logged quietly; everything else is an
// operational error.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := gwerr.HTTPStatus(err)
	kind := gwerr.KindOf(err)

	evt := log.Error()
	if gwerr.Expected(err) {
		evt = log.Debug()
	}
	evt.Err(err).
		Str("kind", string(kind)).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": userMessage(err)})
}

// userMessage strips internal detail that callers should not see.
func userMessage(err error) string {
	var ge *gwerr.Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return "internal error"
}

// handleHealth returns gateway health status, probing the account store.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if err := g.ledger.Ping(ctx); err != nil {
		health["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.metrics.FullStats())
}

// isLoopback reports whether addr is a loopback host:port.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
