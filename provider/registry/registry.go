// Package registry selects the provider that serves a model.
//
// Providers are keyed by their provider.Name. ForModel resolves aliases and
// then walks the providers in the preference order of provider.Names, so the
// first vendor claiming a model wins. Candidates returns every vendor that
// claims it, which is what callers iterate over when an error kind triggers
// a fallback.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/hoot/config"
	"github.com/casualjim/hoot/internal/httpx"
	store "github.com/casualjim/hoot/internal/registry"
	"github.com/casualjim/hoot/internal/runlog"
	"github.com/casualjim/hoot/pkg/natsx"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/anthropic"
	"github.com/casualjim/hoot/provider/bedrock"
	"github.com/casualjim/hoot/provider/fireworks"
	"github.com/casualjim/hoot/provider/google"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/casualjim/hoot/provider/openai"
	"github.com/nats-io/nats.go"
)

var (
	// ErrUnknownModel is returned when no registered provider serves a model.
	ErrUnknownModel = errors.New("no provider serves model")
	// ErrUnknownProvider is returned by Get for an unregistered name.
	ErrUnknownProvider = errors.New("provider is not registered")
)

// Registry holds one constructed provider per vendor.
type Registry struct {
	providers store.Registry[provider.Provider]

	mu      sync.RWMutex
	aliases map[string]string
	closers []func()
}

// New creates a registry holding providers. A later provider with the same
// name replaces an earlier one.
func New(providers ...provider.Provider) *Registry {
	r := &Registry{
		providers: store.New[provider.Provider](),
		aliases:   make(map[string]string),
	}
	for _, p := range providers {
		r.Add(p)
	}
	return r
}

// Add registers p under its name.
func (r *Registry) Add(p provider.Provider) {
	r.providers.Add(p.Name().String(), p)
}

// Get returns the provider registered under name.
func (r *Registry) Get(name provider.Name) (provider.Provider, error) {
	p, ok := r.providers.Get(name.String())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Providers returns the registered providers in preference order.
func (r *Registry) Providers() []provider.Provider {
	out := make([]provider.Provider, 0, r.providers.Len())
	for _, name := range provider.Names() {
		if p, ok := r.providers.Get(name.String()); ok {
			out = append(out, p)
		}
	}
	return out
}

// Alias makes name resolve to model.
func (r *Registry) Alias(name, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = model
}

// Resolve returns the model an alias points to, or model itself.
func (r *Registry) Resolve(model string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[model]; ok {
		return target
	}
	return model
}

// ForModel returns the preferred provider for model and the resolved model identifier.
func (r *Registry) ForModel(model string) (provider.Provider, string, error) {
	candidates, resolved, err := r.Candidates(model)
	if err != nil {
		return nil, resolved, err
	}
	return candidates[0], resolved, nil
}

// Candidates returns every provider that serves model in preference order.
func (r *Registry) Candidates(model string) ([]provider.Provider, string, error) {
	resolved := r.Resolve(model)
	var out []provider.Provider
	for _, p := range r.Providers() {
		if p.SupportsModel(resolved) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, resolved, fmt.Errorf("%w: %s", ErrUnknownModel, resolved)
	}
	return out, resolved, nil
}

// Close releases connections opened by FromConfig.
func (r *Registry) Close() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()
	for _, c := range closers {
		c()
	}
}

// FromConfig builds a registry from cfg. Vendors without credentials are
// skipped. When a NATS url is configured every finished call is published
// on the configured subject.
func FromConfig(ctx context.Context, cfg config.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	settings := httpbase.Settings{
		Client: httpx.NewClient(httpx.Timeouts{
			Dial:           cfg.HTTP.DialTimeout,
			ResponseHeader: cfg.HTTP.ResponseHeaderTimeout,
			StreamIdle:     cfg.HTTP.StreamIdleTimeout,
		}),
		MaxAttempts:       cfg.HTTP.MaxAttempts,
		Backoff:           cfg.HTTP.Backoff,
		StreamIdleTimeout: cfg.HTTP.StreamIdleTimeout,
		SharedConfig:      cfg.HTTP.SharedConfig,
	}

	var conn *nats.Conn
	if cfg.NATS.URL != "" {
		var err error
		conn, err = natsx.NewClient(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		subject := cfg.NATS.Subject
		if subject == "" {
			subject = config.DefaultRunSubject
		}
		settings.Runs = runlog.NATS(conn).Topic(ctx, subject)
	}

	r := New()
	if cfg.OpenAI.APIKey != "" {
		r.Add(openai.New(cfg.OpenAI, settings))
	}
	if cfg.Anthropic.APIKey != "" {
		r.Add(anthropic.New(cfg.Anthropic, settings))
	}
	if cfg.Google.ProjectID != "" {
		r.Add(google.New(cfg.Google, settings))
	}
	if cfg.Bedrock.APIKey != "" {
		r.Add(bedrock.New(cfg.Bedrock, settings))
	}
	if cfg.Fireworks.APIKey != "" {
		r.Add(fireworks.New(cfg.Fireworks, settings))
	}
	for alias, model := range cfg.Aliases {
		r.Alias(alias, model)
	}
	if conn != nil {
		r.closers = append(r.closers, func() {
			if err := conn.Drain(); err != nil {
				slog.WarnContext(ctx, "draining nats connection", slogx.Error(err))
			}
		})
	}

	slog.DebugContext(ctx, "provider registry ready", slog.Any("providers", r.names()))
	return r, nil
}

// FromEnv builds a registry from the vendor environment variables, skipping
// every vendor whose variables are missing.
func FromEnv(settings httpbase.Settings) *Registry {
	r := New()
	add := func(name provider.Name, build func() (provider.Provider, error)) {
		p, err := build()
		if err != nil {
			slog.Debug("skipping provider", slogx.Provider(name), slogx.Error(err))
			return
		}
		r.Add(p)
	}
	add(provider.OpenAI, func() (provider.Provider, error) { return openai.FromEnv(settings) })
	add(provider.Anthropic, func() (provider.Provider, error) { return anthropic.FromEnv(settings) })
	add(provider.GoogleVertex, func() (provider.Provider, error) { return google.FromEnv(settings) })
	add(provider.Bedrock, func() (provider.Provider, error) { return bedrock.FromEnv(settings) })
	add(provider.Fireworks, func() (provider.Provider, error) { return fireworks.FromEnv(settings) })
	return r
}

func (r *Registry) names() []string {
	return r.providers.Keys()
}
