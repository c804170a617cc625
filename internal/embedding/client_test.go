package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalahealth/coach/internal/cache"
	"github.com/nalahealth/coach/internal/metrics"
)

func newEmbeddingServer(t *testing.T, calls *int64, failFirst int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(calls, 1)
		if int(n) <= failFirst {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbed(t *testing.T) {
	var calls int64
	srv := newEmbeddingServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k", Timeout: 5 * time.Second}, nil, nil)

	vec, err := c.Embed(context.Background(), "I want to walk more")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int64(1), calls)
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	var calls int64
	srv := newEmbeddingServer(t, &calls, 2)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second}, nil, nil)

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int64(3), calls)
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second}, nil, nil)

	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int64(1), calls)
}

func TestEmbedUsesCache(t *testing.T) {
	var calls int64
	srv := newEmbeddingServer(t, &calls, 0)
	defer srv.Close()

	embCache := cache.New(&cache.Config{Enabled: true, DefaultTTL: time.Hour, MaxSize: 10})
	c := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second}, embCache, nil)

	_, err := c.Embed(context.Background(), "same text")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls, "second embed of identical text must be served from cache")
}

func TestEmbedRecordsMetrics(t *testing.T) {
	var calls int64
	srv := newEmbeddingServer(t, &calls, 0)
	defer srv.Close()

	m := metrics.NewMetrics()
	requests := m.EmbeddingRequests.WithLabelValues("text-embedding-3-small")
	requestsBefore := testutil.ToFloat64(requests)
	hitsBefore := testutil.ToFloat64(m.EmbeddingCacheHits)

	embCache := cache.New(&cache.Config{Enabled: true, DefaultTTL: time.Hour, MaxSize: 10})
	c := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second}, embCache, m)

	_, err := c.Embed(context.Background(), "same text")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(requests)-requestsBefore)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmbeddingCacheHits)-hitsBefore)
}
