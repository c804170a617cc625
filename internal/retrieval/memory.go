package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/nalahealth/coach/pkg/models"
)

// MemoryIndex is a brute-force cosine-similarity index held in memory. It
// serves small corpora and tests; production deployments use the
// pgvector-backed store via StoreIndex.
type MemoryIndex struct {
	embedder Embedder

	mu       sync.RWMutex
	examples []models.CoachingExample
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// Add appends examples to the index. Each example must carry its embedding.
func (m *MemoryIndex) Add(examples ...models.CoachingExample) error {
	for _, ex := range examples {
		if len(ex.Embedding) == 0 {
			return fmt.Errorf("example %s has no embedding", ex.ID)
		}
	}
	m.mu.Lock()
	m.examples = append(m.examples, examples...)
	m.mu.Unlock()
	return nil
}

// Retrieve embeds the query and ranks all stored examples by cosine
// similarity. Ties keep insertion order so identical inputs always produce
// identical output.
func (m *MemoryIndex) Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.RetrievedExample, error) {
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]models.RetrievedExample, 0, topK)
	for _, ex := range m.examples {
		sim := CosineSimilarity(vector, ex.Embedding)
		if sim < minSimilarity {
			continue
		}
		results = append(results, models.RetrievedExample{Example: ex, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
