// Package embedding turns text into fixed-length vectors using an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nalahealth/coach/internal/cache"
	"github.com/nalahealth/coach/internal/metrics"
)

const maxRetries = 3

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	cache    *cache.Cache     // optional
	metrics  *metrics.Metrics // optional
}

// Config configures the embeddings client.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
// Both the cache and m may be nil.
func NewClient(cfg Config, embeddingCache *cache.Cache, m *metrics.Metrics) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
		cache:    embeddingCache,
		metrics:  m,
	}
}

// Model returns the embedding model identifier.
func (c *Client) Model() string { return c.model }

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns an embedding vector for the given text. Results are cached
// by (model, text) when a cache is configured.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.metrics != nil {
		c.metrics.EmbeddingRequests.WithLabelValues(c.model).Inc()
	}

	key := cache.GenerateKey(c.model, text)
	if c.cache != nil {
		if vec, ok := c.cache.Get(ctx, key); ok {
			if c.metrics != nil {
				c.metrics.EmbeddingCacheHits.Inc()
			}
			return vec, nil
		}
	}

	vec, err := c.embedRemote(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, c.model, vec)
	}
	return vec, nil
}

func (c *Client) embedRemote(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/embeddings", c.endpoint)

	body, err := json.Marshal(embeddingRequest{Input: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("embeddings request failed: %s", resp.Status)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embeddings request failed with status %d: %s", resp.StatusCode, string(respBody))
		}

		var out embeddingResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("no embedding returned for input")
		}
		return out.Data[0].Embedding, nil
	}

	return nil, fmt.Errorf("embeddings request failed after %d retries: %w", maxRetries, lastErr)
}

// retryDelay implements exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
