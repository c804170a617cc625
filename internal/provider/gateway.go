package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/nalahealth/coach/internal/metrics"
	"github.com/nalahealth/coach/pkg/models"
)

const retryBackoff = 500 * time.Millisecond

// GenerationError is returned when a provider could not produce a reply.
// It carries the provider name and the underlying cause for diagnostics;
// callers surface it as a generic failure without the provider detail.
type GenerationError struct {
	Provider Name
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed on provider %s: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Reply is the gateway's result: the generated text plus provenance.
type Reply struct {
	Text     string
	Provider Name
	Model    string
}

// Gateway routes completion requests to a registered provider. A transient
// provider failure is retried once with backoff; anything else surfaces
// immediately as a GenerationError.
type Gateway struct {
	registry    *Registry
	defaultName Name
	metrics     *metrics.Metrics // optional
}

// NewGateway creates a gateway with the given default provider. m may be nil.
func NewGateway(registry *Registry, defaultName Name, m *metrics.Metrics) (*Gateway, error) {
	if _, err := registry.Get(defaultName); err != nil {
		return nil, fmt.Errorf("default provider unavailable: %w", err)
	}
	return &Gateway{registry: registry, defaultName: defaultName, metrics: m}, nil
}

// Generate produces a completion for the given system prompt and messages.
// providerHint selects a provider when it names a registered one; otherwise
// the configured default is used.
func (g *Gateway) Generate(ctx context.Context, system string, messages []models.ChatMessage, providerHint string) (*Reply, error) {
	name := g.defaultName
	if providerHint != "" {
		if parsed, err := ParseName(providerHint); err == nil {
			if _, err := g.registry.Get(parsed); err == nil {
				name = parsed
			}
		}
	}

	registered, err := g.registry.Get(name)
	if err != nil {
		return nil, &GenerationError{Provider: name, Err: err}
	}

	req := &ChatCompletionRequest{
		Model:       registered.Config.Model,
		System:      system,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   500,
	}

	start := time.Now()
	if g.metrics != nil {
		g.metrics.ProviderRequests.WithLabelValues(string(name), registered.Config.Model).Inc()
	}

	resp, err := registered.Protocol.CreateChatCompletion(ctx, req)
	if err != nil && IsTransient(err) {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, &GenerationError{Provider: name, Err: ctx.Err()}
		}
		if g.metrics != nil {
			g.metrics.ProviderRequests.WithLabelValues(string(name), registered.Config.Model).Inc()
		}
		resp, err = registered.Protocol.CreateChatCompletion(ctx, req)
	}
	if g.metrics != nil {
		g.metrics.ProviderLatency.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if g.metrics != nil {
			g.metrics.ProviderErrors.WithLabelValues(string(name)).Inc()
		}
		return nil, &GenerationError{Provider: name, Err: err}
	}
	if g.metrics != nil {
		g.metrics.ProviderTokens.WithLabelValues(string(name), "prompt").Add(float64(resp.Usage.PromptTokens))
		g.metrics.ProviderTokens.WithLabelValues(string(name), "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	model := resp.Model
	if model == "" {
		model = registered.Config.Model
	}
	return &Reply{Text: resp.Content, Provider: name, Model: model}, nil
}
