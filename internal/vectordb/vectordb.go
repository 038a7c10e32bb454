// Package vectordb persists chunk embeddings and serves similarity search
// over them. The production implementation is a Qdrant adapter speaking
// gRPC; the Store interface exists so the retrieval and pipeline layers can
// be exercised against an in-memory fake in tests.
package vectordb

import "context"

// Payload is the metadata stored alongside each vector point.
type Payload struct {
	// Source is the logical document ID the chunk came from.
	Source string

	// Text is the raw chunk text, returned verbatim at search time.
	Text string
}

// SearchResult holds search hits in descending similarity order.
// Contexts[i] and Sources[i] describe the same hit.
type SearchResult struct {
	// Contexts are the chunk texts of the hits.
	Contexts []string

	// Sources are the document IDs the corresponding chunks came from.
	Sources []string
}

// Empty reports whether the search returned no usable hits.
func (r SearchResult) Empty() bool { return len(r.Contexts) == 0 }

// Store is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type Store interface {
	// EnsureCollection creates the backing collection with the given vector
	// dimensionality if it does not already exist.
	EnsureCollection(ctx context.Context, dim uint64) error

	// Upsert writes points from the parallel ids/vectors/payloads slices and
	// returns the number of points written. Re-upserting an existing ID
	// overwrites that point in place.
	Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []Payload) (int, error)

	// Search returns up to topK nearest neighbours of the query vector.
	// A non-empty sourceFilter restricts hits to points from that source.
	// No matches is an empty result, not an error.
	Search(ctx context.Context, vector []float32, topK int, sourceFilter string) (SearchResult, error)

	// ListSources returns the distinct source IDs present in the collection,
	// sorted ascending.
	ListSources(ctx context.Context) ([]string, error)

	// DeleteBySource removes every point belonging to source and reports
	// whether any existed. Deleting an absent source is success, not an error.
	DeleteBySource(ctx context.Context, source string) (existed bool, err error)

	// DeleteCollection drops the whole collection.
	DeleteCollection(ctx context.Context) error

	// Count returns the exact number of points in the collection.
	Count(ctx context.Context) (uint64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
