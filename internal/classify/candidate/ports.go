// Package candidate generates, scores and reranks tariff-code candidates.
// The generator fans out to the retrieval channels, fuses their results into
// a deduplicated set; the scorer and reranker are pure functions over that
// set.
package candidate

import (
	"context"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Embedder turns query text into a vector. Failure degrades retrieval to the
// lexical channels, it never aborts classification.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the nearest-neighbour store. An empty chapters slice
// means an unscoped global search.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, chapters []string, limit int) ([]classify.VectorHit, error)
}

// CatalogIndex is the lexical side of retrieval over the tariff catalog.
type CatalogIndex interface {
	// Lookup returns catalog entries whose indexed term bag intersects terms.
	Lookup(ctx context.Context, terms []string) ([]classify.CatalogEntry, error)
	// ScopedSubstring searches descriptions and keyword bags for literal
	// term occurrences inside the given chapters.
	ScopedSubstring(ctx context.Context, terms []string, chapters []string, limit int) ([]classify.CatalogEntry, error)
}
