// Package retrieval turns a question into citation-indexed context for the
// answer prompt. The Assembler embeds the question, searches the vector
// store, trims the hits to the context token budget, and renders them as a
// numbered block the model can cite by index.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/SebastianCielma/RAG/internal/budget"
	"github.com/SebastianCielma/RAG/internal/ragerr"
	"github.com/SebastianCielma/RAG/internal/vectordb"
)

// NoContextAnswer is the fixed answer used when retrieval finds nothing.
// The model is never called in that case.
const NoContextAnswer = "No relevant information found in the documents."

// DefaultTopK is the number of chunks retrieved when the caller passes 0.
const DefaultTopK = 5

// Encoder is the subset of the embedding encoder the assembler needs.
type Encoder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the subset of the vector store the assembler needs.
type Searcher interface {
	// Search returns up to topK nearest neighbours of the query vector.
	Search(ctx context.Context, vector []float32, topK int, sourceFilter string) (vectordb.SearchResult, error)
}

// Retrieved is the assembled retrieval result for one question.
type Retrieved struct {
	// ContextBlock is the citation-indexed context ready for the prompt:
	// one "[i] Source: {source}" header per chunk, blocks joined by blank
	// lines, i counted from 1 in rank order.
	ContextBlock string

	// Contexts are the retained chunk texts in rank order.
	Contexts []string

	// Sources are the source IDs parallel to Contexts.
	Sources []string

	// SourceIndex maps each distinct source to the first citation index it
	// appears under.
	SourceIndex map[string]int
}

// Empty reports whether retrieval produced no usable context.
func (r Retrieved) Empty() bool { return len(r.Contexts) == 0 }

// Assembler combines an Encoder and a Searcher into the retrieval step of
// the pipeline. Safe to call from multiple goroutines.
type Assembler struct {
	encoder Encoder
	store   Searcher

	// defaultTopK is the result count used when Retrieve is called with 0.
	defaultTopK int

	// maxTokens is the estimated-token budget for the assembled context.
	maxTokens int
}

// NewAssembler constructs an Assembler. defaultTopK and maxContextTokens
// fall back to DefaultTopK and budget.DefaultMaxContextTokens when
// non-positive.
func NewAssembler(encoder Encoder, store Searcher, defaultTopK, maxContextTokens int) (*Assembler, error) {
	if encoder == nil {
		return nil, fmt.Errorf("retrieval: encoder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if maxContextTokens <= 0 {
		maxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Assembler{
		encoder:     encoder,
		store:       store,
		defaultTopK: defaultTopK,
		maxTokens:   maxContextTokens,
	}, nil
}

// Retrieve embeds the question, searches the store, and assembles the hits
// into citation-indexed context. A non-empty sourceFilter restricts the
// search to one document. An empty result is not an error; callers check
// Retrieved.Empty and answer with NoContextAnswer.
func (a *Assembler) Retrieve(ctx context.Context, question string, topK int, sourceFilter string) (Retrieved, error) {
	if strings.TrimSpace(question) == "" {
		return Retrieved{}, ragerr.New(ragerr.KindValidation, "retrieval: question must not be empty")
	}
	if topK <= 0 {
		topK = a.defaultTopK
	}

	vecs, err := a.encoder.Embed(ctx, []string{question})
	if err != nil {
		return Retrieved{}, fmt.Errorf("retrieval: embedding question: %w", err)
	}
	if len(vecs) == 0 {
		return Retrieved{}, ragerr.New(ragerr.KindEmbedding, "retrieval: encoder returned no vector for question")
	}

	res, err := a.store.Search(ctx, vecs[0], topK, sourceFilter)
	if err != nil {
		return Retrieved{}, fmt.Errorf("retrieval: vector search: %w", err)
	}

	contexts, sources := budget.TrimContexts(res.Contexts, res.Sources, a.maxTokens)
	return assemble(contexts, sources), nil
}

// assemble renders ranked chunks into the numbered context block and builds
// the source → first-citation index.
func assemble(contexts, sources []string) Retrieved {
	if len(contexts) == 0 {
		return Retrieved{SourceIndex: map[string]int{}}
	}

	blocks := make([]string, len(contexts))
	sourceIndex := make(map[string]int, len(sources))
	for i, text := range contexts {
		n := i + 1
		blocks[i] = fmt.Sprintf("[%d] Source: %s\n%s", n, sources[i], text)
		if _, ok := sourceIndex[sources[i]]; !ok {
			sourceIndex[sources[i]] = n
		}
	}

	return Retrieved{
		ContextBlock: strings.Join(blocks, "\n\n"),
		Contexts:     contexts,
		Sources:      sources,
		SourceIndex:  sourceIndex,
	}
}

// UniqueSources returns sources deduplicated, preserving first-occurrence
// order. Used for the sources list reported alongside an answer.
func UniqueSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
