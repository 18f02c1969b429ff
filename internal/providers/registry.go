// Package providers maps model identifiers to upstream LLM providers.
//
// DESIGN: The registry is built once at startup from configuration and is
// read-only afterwards, so concurrent lookups need no locking. Each provider
// is a capability value: base URL, credential header, extra headers and an
// optional forced sampling temperature, selected via a lookup table keyed by
// model id rather than ad hoc string matching in the handler.
package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lumenchat/request-gateway/internal/config"
	"github.com/lumenchat/request-gateway/internal/gwerr"
)

// Provider is one upstream LLM vendor endpoint.
type Provider struct {
	name        string
	baseURL     string
	apiKey      string
	temperature *float64
	headers     map[string]string
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.name }

// BaseURL returns the provider's API base URL without a trailing slash.
func (p *Provider) BaseURL() string { return p.baseURL }

// CompletionsURL returns the OpenAI-style chat completions endpoint.
func (p *Provider) CompletionsURL() string {
	return p.baseURL + "/chat/completions"
}

// AuthHeader returns the bearer credential sent upstream. This is always the
// provider credential, never the caller's.
func (p *Provider) AuthHeader() string {
	return "Bearer " + p.apiKey
}

// ExtraHeaders returns provider-specific headers (attribution etc.), or nil.
func (p *Provider) ExtraHeaders() map[string]string { return p.headers }

// ForcedTemperature returns the temperature this provider pins on every
// request, or nil when the caller's value passes through.
func (p *Provider) ForcedTemperature() *float64 { return p.temperature }

// Registry resolves model identifiers to providers.
type Registry struct {
	byModel   map[string]*Provider
	providers []*Provider
}

// NewRegistry builds the lookup table. Ambiguous model membership is a
// configuration error; config.Validate already rejects it, but the registry
// fails fast too so it cannot be constructed in an inconsistent state.
func NewRegistry(cfgs map[string]config.ProviderConfig) (*Registry, error) {
	r := &Registry{byModel: make(map[string]*Provider)}

	// Deterministic construction order keeps error messages stable.
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := cfgs[name]
		p := &Provider{
			name:        name,
			baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:      cfg.APIKey,
			temperature: cfg.Temperature,
		}
		if len(cfg.Headers) > 0 {
			p.headers = make(map[string]string, len(cfg.Headers))
			for k, v := range cfg.Headers {
				p.headers[k] = v
			}
		}
		for _, model := range cfg.Models {
			model = strings.TrimSpace(model)
			if model == "" {
				return nil, fmt.Errorf("provider %q lists an empty model id", name)
			}
			if other, dup := r.byModel[model]; dup {
				return nil, fmt.Errorf("model %q claimed by both %q and %q", model, other.name, name)
			}
			r.byModel[model] = p
		}
		r.providers = append(r.providers, p)
	}
	return r, nil
}

// Resolve returns the provider serving modelID.
func (r *Registry) Resolve(modelID string) (*Provider, error) {
	p, ok := r.byModel[modelID]
	if !ok {
		return nil, gwerr.New(gwerr.KindUnknownModel, "unknown model %q", modelID)
	}
	return p, nil
}

// Providers returns all configured providers in name order.
func (r *Registry) Providers() []*Provider {
	out := make([]*Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Models returns every model id in the registry, sorted.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.byModel))
	for m := range r.byModel {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
