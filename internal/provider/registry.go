package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/pkg/types"
)

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID() < providers[j].ID() })
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// Resolve picks the provider and model for a generation. spec is a
// "provider/model" string; an empty spec or provider falls back to the
// configured default model, then to the first registered provider.
func (r *Registry) Resolve(spec string) (Provider, string, error) {
	if spec == "" && r.config != nil {
		spec = r.config.Model
	}
	providerID, modelID := ParseModelString(spec)

	if providerID != "" {
		p, err := r.Get(providerID)
		if err != nil {
			return nil, "", err
		}
		return p, modelID, nil
	}

	providers := r.List()
	if len(providers) == 0 {
		return nil, "", fmt.Errorf("no providers configured")
	}
	return providers[0], modelID, nil
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// InitializeProviders creates and registers all providers from config.
// Providers that fail to initialize are logged and skipped.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)

	for id, cfg := range config.Provider {
		if cfg.Disable {
			continue
		}
		apiKey, baseURL := cfg.APIKey, cfg.BaseURL
		if cfg.Options != nil {
			if apiKey == "" {
				apiKey = cfg.Options.APIKey
			}
			if baseURL == "" {
				baseURL = cfg.Options.BaseURL
			}
		}
		if apiKey == "" {
			continue
		}

		var (
			p   Provider
			err error
		)
		switch id {
		case "anthropic":
			p, err = NewAnthropicProvider(ctx, &AnthropicConfig{
				APIKey:  apiKey,
				BaseURL: baseURL,
				Model:   cfg.Model,
			})
		case "ark":
			p, err = NewArkProvider(ctx, &ArkConfig{
				APIKey:  apiKey,
				BaseURL: baseURL,
				Model:   cfg.Model,
			})
		default:
			// everything else is treated as OpenAI-compatible
			p, err = NewOpenAIProvider(ctx, &OpenAIConfig{
				ID:      id,
				APIKey:  apiKey,
				BaseURL: baseURL,
				Model:   cfg.Model,
			})
		}
		if err != nil {
			logging.Warn().Err(err).Str("provider", id).Msg("provider disabled")
			continue
		}
		registry.Register(p)
	}

	return registry, nil
}
