// Package embed converts text into dense vector embeddings. Backends talk
// to their services (Ollama, OpenAI or Azure OpenAI) via plain HTTP — no
// additional SDK dependencies are required. Production callers wrap a
// backend in [CachingEncoder], which adds a bounded content-hash cache so
// repeated texts are embedded once per process.
package embed

import "context"

// Embedder converts a batch of texts into their embeddings. The returned
// slice is parallel to the input slice. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed width of vectors this embedder produces.
	Dimensions() int

	// Name identifies the backend ("ollama", "openai", "azure") for logs
	// and readiness probes.
	Name() string
}
