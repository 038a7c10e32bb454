package server

import (
	"context"
	"fmt"

	"github.com/SebastianCielma/RAG/internal/embed"
	"github.com/SebastianCielma/RAG/internal/llm"
	"github.com/SebastianCielma/RAG/internal/vectordb"
)

// QdrantPinger probes the vector store via its native health-check RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// store is the vector store adapter to probe.
	store *vectordb.QdrantStore
}

// NewQdrantPinger constructs a QdrantPinger for the given store.
func NewQdrantPinger(store *vectordb.QdrantStore) *QdrantPinger {
	return &QdrantPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant health-check RPC through the adapter.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// LLMPinger probes the chat backend with a single-token generate request.
// Each probe costs one token, so readiness checks should not be polled
// aggressively.
type LLMPinger struct {
	// client is the chat client to probe.
	client *llm.Client
	// name identifies the backend in readiness responses (e.g. "groq").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given client and backend name.
func NewLLMPinger(client *llm.Client, name string) *LLMPinger {
	return &LLMPinger{client: client, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a minimal generate request to the chat backend.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding one short input.
// It wraps the raw backend rather than the caching encoder: a cached probe
// would report ready forever after the first success.
type EmbedderPinger struct {
	// enc is the raw embedding backend to probe.
	enc embed.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given backend.
func NewEmbedderPinger(enc embed.Embedder) *EmbedderPinger {
	return &EmbedderPinger{enc: enc}
}

// Name returns the backend's own label (e.g. "ollama", "openai").
func (p *EmbedderPinger) Name() string { return p.enc.Name() }

// Ping embeds a single short input and verifies one vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.enc.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed probe returned no vector")
	}
	return nil
}
