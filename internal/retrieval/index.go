// Package retrieval answers nearest-neighbor queries over the coaching
// example corpus under a cosine-similarity metric.
package retrieval

import (
	"context"
	"fmt"

	"github.com/nalahealth/coach/pkg/models"
)

// Index retrieves coaching examples semantically similar to a query.
// Candidates below minSimilarity are excluded before ranking; results are
// ordered by descending similarity. Fewer than topK results (including
// zero) is a valid outcome, not an error.
type Index interface {
	Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.RetrievedExample, error)
}

// Embedder converts text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ExampleSearcher runs a vector similarity search over stored examples.
type ExampleSearcher interface {
	SearchExamples(ctx context.Context, vector []float32, topK int, minSimilarity float64) ([]models.RetrievedExample, error)
}

// StoreIndex is an Index backed by a vector-capable example store. The query
// is embedded on demand and the store performs the similarity ranking.
type StoreIndex struct {
	embedder Embedder
	store    ExampleSearcher
}

// NewStoreIndex creates an index over the given embedder and example store.
func NewStoreIndex(embedder Embedder, store ExampleSearcher) *StoreIndex {
	return &StoreIndex{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the stored examples that clear the
// similarity floor, best match first.
func (i *StoreIndex) Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.RetrievedExample, error) {
	vector, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := i.store.SearchExamples(ctx, vector, topK, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("failed to search examples: %w", err)
	}
	return results, nil
}
