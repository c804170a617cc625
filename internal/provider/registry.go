package provider

import (
	"fmt"
	"sync"
)

// Name identifies a supported provider. The set is closed so invalid values
// are rejected at the boundary instead of silently persisted.
type Name string

const (
	NameOpenAI    Name = "openai"
	NameAnthropic Name = "anthropic"
)

// ParseName validates a free-text provider name against the closed set.
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case NameOpenAI, NameAnthropic:
		return Name(s), nil
	default:
		return "", fmt.Errorf("unsupported provider name: %s", s)
	}
}

// Config represents the configuration for one provider.
type Config struct {
	Name     Name   `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model"`
}

// RegisteredProvider wraps a provider with its configuration and protocol.
type RegisteredProvider struct {
	Config   *Config
	Protocol Protocol
}

// Registry manages registered LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[Name]*RegisteredProvider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Name]*RegisteredProvider),
	}
}

// Register registers a new provider.
func (r *Registry) Register(config *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[config.Name]; exists {
		return fmt.Errorf("provider %s already registered", config.Name)
	}

	var protocol Protocol
	switch config.Name {
	case NameOpenAI:
		protocol = NewOpenAIProvider(config.Endpoint, config.APIKey)
	case NameAnthropic:
		protocol = NewAnthropicProvider(config.Endpoint, config.APIKey)
	default:
		return fmt.Errorf("unsupported provider name: %s", config.Name)
	}

	r.providers[config.Name] = &RegisteredProvider{
		Config:   config,
		Protocol: protocol,
	}
	return nil
}

// RegisterProtocol registers a provider with an explicit protocol
// implementation. Used by tests and custom endpoints.
func (r *Registry) RegisterProtocol(config *Config, protocol Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[config.Name] = &RegisteredProvider{Config: config, Protocol: protocol}
}

// Get retrieves a registered provider.
func (r *Registry) Get(name Name) (*RegisteredProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return provider, nil
}

// List returns all registered provider names.
func (r *Registry) List() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
