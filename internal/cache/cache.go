package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry is a cached embedding vector.
type Entry struct {
	Key       string    `json:"key"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config defines cache configuration.
type Config struct {
	Enabled       bool          `json:"enabled"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	MaxSize       int           `json:"max_size"`
	CleanupPeriod time.Duration `json:"cleanup_period"`
}

// DefaultConfig returns sensible defaults for embedding caching.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultTTL:    24 * time.Hour,
		MaxSize:       10000,
		CleanupPeriod: 5 * time.Minute,
	}
}

// Backend is the interface for cache storage backends.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string)
}

// Stats tracks cache performance.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache stores embedding vectors keyed by (model, text). Identical user
// messages are common in a fixed-stage program, so embedding them once
// saves an outbound call per repeat.
type Cache struct {
	backend Backend
	config  *Config
	entries map[string]*Entry
	mu      sync.RWMutex
	stats   Stats
}

// New creates a new in-memory cache instance.
func New(config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Cache{
		config:  config,
		entries: make(map[string]*Entry),
	}

	if config.Enabled && config.CleanupPeriod > 0 {
		go c.cleanupLoop()
	}

	return c
}

// NewFromBackend creates a cache instance over an external backend such as Redis.
func NewFromBackend(backend Backend, config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	return &Cache{
		backend: backend,
		config:  config,
	}
}

// GenerateKey creates a cache key from the embedding model and input text.
func GenerateKey(model, text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(model))
	hasher.Write([]byte(":"))
	hasher.Write([]byte(text))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Get retrieves a cached vector if available and not expired.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	if c.backend != nil {
		entry, ok := c.backend.Get(ctx, key)
		c.recordLookup(ok)
		if !ok {
			return nil, false
		}
		return entry.Vector, true
	}

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordLookup(false)
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.recordLookup(false)
		return nil, false
	}

	c.recordLookup(true)
	return entry.Vector, true
}

// Set stores an embedding vector in the cache.
func (c *Cache) Set(ctx context.Context, key, model string, vector []float32) error {
	if !c.config.Enabled {
		return nil
	}

	entry := &Entry{
		Key:       key,
		Vector:    vector,
		Model:     model,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.config.DefaultTTL),
	}

	if c.backend != nil {
		return c.backend.Set(ctx, key, entry, c.config.DefaultTTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.config.MaxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	return nil
}

// Delete removes an entry from the cache.
func (c *Cache) Delete(ctx context.Context, key string) {
	if !c.config.Enabled {
		return
	}
	if c.backend != nil {
		c.backend.Delete(ctx, key)
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetStats returns a snapshot of cache performance counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Cache) recordLookup(hit bool) {
	c.mu.Lock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.mu.Unlock()
}

// evictOldest removes the entry with the earliest CachedAt. Caller holds c.mu.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for key, entry := range c.entries {
			if now.After(entry.ExpiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}
