// Package pipeline defines the document workflows and registers them on the
// workflow engine: ingest a document into the vector store, answer a
// question over the stored chunks, list the stored sources, and delete one.
// Each workflow checkpoints its expensive work in memoized steps so retries
// and crash recovery never re-embed or re-upsert finished batches.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/SebastianCielma/RAG/internal/chunk"
	"github.com/SebastianCielma/RAG/internal/llm"
	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
	"github.com/SebastianCielma/RAG/internal/retrieval"
	"github.com/SebastianCielma/RAG/internal/vectordb"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// Event names the workflows are triggered by. The _pdf suffixes are kept for
// wire compatibility with existing clients even though ingestion is not
// PDF-specific.
const (
	EventIngest = "rag/ingest_pdf"
	EventQuery  = "rag/query_pdf_ai"
	EventList   = "rag/list_documents"
	EventDelete = "rag/delete_document"
)

// IngestPayload triggers document ingestion. SourceID defaults to FilePath.
type IngestPayload struct {
	FilePath string `json:"file_path"`
	SourceID string `json:"source_id,omitempty"`
}

// QueryPayload triggers a question run.
type QueryPayload struct {
	Question     string `json:"question"`
	TopK         int    `json:"top_k,omitempty"`
	Model        string `json:"model,omitempty"`
	SourceFilter string `json:"source_filter,omitempty"`
}

// DeletePayload names the source to remove.
type DeletePayload struct {
	SourceID string `json:"source_id"`
}

// IngestResult is the ingest run output.
type IngestResult struct {
	Ingested int `json:"ingested"`
}

// QueryResult is the query run output. Sources is deduplicated preserving
// first-occurrence order; Contexts is omitted when retrieval found nothing.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
	Contexts    []string `json:"contexts,omitempty"`
}

// ListResult is the list run output: distinct sources, sorted.
type ListResult struct {
	Documents []string `json:"documents"`
}

// DeleteResult is the delete run output. Deleted is false when the source
// had no stored chunks; that is still a successful run.
type DeleteResult struct {
	Deleted  bool   `json:"deleted"`
	SourceID string `json:"source_id"`
}

// chunkSet is the load-and-chunk step output fed into embed-and-upsert.
type chunkSet struct {
	Chunks   []string `json:"chunks"`
	SourceID string   `json:"source_id"`
}

// DocumentLoader extracts a document's text.
type DocumentLoader interface {
	Load(path string) (string, error)
}

// Encoder embeds chunk texts.
type Encoder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the slice of the vector store the workflows use.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []vectordb.Payload) (int, error)
	ListSources(ctx context.Context) ([]string, error)
	DeleteBySource(ctx context.Context, source string) (bool, error)
}

// Retriever assembles the citation-indexed context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, sourceFilter string) (retrieval.Retrieved, error)
}

// Answerer generates the blocking answer for query runs.
type Answerer interface {
	Complete(ctx context.Context, msgs []*schema.Message, model string) (string, error)
}

// Deps are the capabilities the workflows run against.
type Deps struct {
	Loader    DocumentLoader
	Encoder   Encoder
	Store     VectorStore
	Retriever Retriever
	LLM       Answerer

	// ChunkSize and ChunkOverlap configure the splitter. Zero values take
	// the chunk package defaults.
	ChunkSize    int
	ChunkOverlap int
}

func (d Deps) validate() error {
	switch {
	case d.Loader == nil:
		return fmt.Errorf("pipeline: document loader must not be nil")
	case d.Encoder == nil:
		return fmt.Errorf("pipeline: encoder must not be nil")
	case d.Store == nil:
		return fmt.Errorf("pipeline: vector store must not be nil")
	case d.Retriever == nil:
		return fmt.Errorf("pipeline: retriever must not be nil")
	case d.LLM == nil:
		return fmt.Errorf("pipeline: llm client must not be nil")
	}
	return nil
}

// Register wires the four document workflows onto the engine.
func Register(e *workflow.Engine, deps Deps) error {
	if err := deps.validate(); err != nil {
		return err
	}
	fns := []workflow.Function{
		{ID: "RAG: Ingest Document", Event: EventIngest, Handler: deps.ingest},
		{ID: "RAG: Query Documents", Event: EventQuery, Handler: deps.query},
		{ID: "RAG: List Documents", Event: EventList, Handler: deps.list},
		{ID: "RAG: Delete Document", Event: EventDelete, Handler: deps.deleteSource},
	}
	for _, fn := range fns {
		if err := e.Register(fn); err != nil {
			return err
		}
	}
	return nil
}

// ChunkID returns the deterministic point id for chunk i of a source:
// UUIDv5 over the URL namespace of "{source}:{i}". Re-ingesting a source
// yields the same ids, so upserts overwrite instead of duplicating.
func ChunkID(sourceID string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", sourceID, i))).String()
}

// ChunkIDs returns the point ids for the first n chunks of a source.
func ChunkIDs(sourceID string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ChunkID(sourceID, i)
	}
	return ids
}

func (d Deps) ingest(ctx context.Context, run *workflow.Run) (any, error) {
	var p IngestPayload
	if err := run.Bind(&p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.FilePath) == "" {
		return nil, ragerr.New(ragerr.KindValidation, "pipeline: file_path must not be empty")
	}
	if p.SourceID == "" {
		p.SourceID = p.FilePath
	}

	set, err := workflow.Step(ctx, run, "load-and-chunk", func(ctx context.Context) (chunkSet, error) {
		text, err := d.Loader.Load(p.FilePath)
		if err != nil {
			return chunkSet{}, err
		}
		chunks := chunk.Split(text, d.ChunkSize, d.ChunkOverlap)
		logging.FromContext(ctx).Info("document chunked",
			slog.String("source", p.SourceID),
			slog.Int("chunks", len(chunks)),
		)
		return chunkSet{Chunks: chunks, SourceID: p.SourceID}, nil
	})
	if err != nil {
		return nil, err
	}

	return workflow.Step(ctx, run, "embed-and-upsert", func(ctx context.Context) (IngestResult, error) {
		if len(set.Chunks) == 0 {
			logging.FromContext(ctx).Warn("no chunks to upsert", slog.String("source", set.SourceID))
			return IngestResult{Ingested: 0}, nil
		}

		vectors, err := d.Encoder.Embed(ctx, set.Chunks)
		if err != nil {
			return IngestResult{}, err
		}
		payloads := make([]vectordb.Payload, len(set.Chunks))
		for i, text := range set.Chunks {
			payloads[i] = vectordb.Payload{Source: set.SourceID, Text: text}
		}

		n, err := d.Store.Upsert(ctx, ChunkIDs(set.SourceID, len(set.Chunks)), vectors, payloads)
		if err != nil {
			return IngestResult{}, err
		}
		logging.FromContext(ctx).Info("chunks upserted",
			slog.String("source", set.SourceID),
			slog.Int("count", n),
		)
		return IngestResult{Ingested: n}, nil
	})
}

func (d Deps) query(ctx context.Context, run *workflow.Run) (any, error) {
	var p QueryPayload
	if err := run.Bind(&p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Question) == "" {
		return nil, ragerr.New(ragerr.KindValidation, "pipeline: question must not be empty")
	}

	found, err := workflow.Step(ctx, run, "embed-and-search", func(ctx context.Context) (retrieval.Retrieved, error) {
		return d.Retriever.Retrieve(ctx, p.Question, p.TopK, p.SourceFilter)
	})
	if err != nil {
		return nil, err
	}

	// Nothing retrieved: answer with the fixed sentinel and skip the model
	// call entirely.
	if found.Empty() {
		logging.FromContext(ctx).Warn("no relevant context found")
		return QueryResult{
			Answer:  retrieval.NoContextAnswer,
			Sources: []string{},
		}, nil
	}

	answer, err := workflow.Step(ctx, run, "llm-answer", func(ctx context.Context) (string, error) {
		return d.LLM.Complete(ctx, llm.BuildPrompt(p.Question, found.ContextBlock), p.Model)
	})
	if err != nil {
		return nil, err
	}

	return QueryResult{
		Answer:      answer,
		Sources:     retrieval.UniqueSources(found.Sources),
		NumContexts: len(found.Contexts),
		Contexts:    found.Contexts,
	}, nil
}

func (d Deps) list(ctx context.Context, run *workflow.Run) (any, error) {
	return workflow.Step(ctx, run, "list-sources", func(ctx context.Context) (ListResult, error) {
		sources, err := d.Store.ListSources(ctx)
		if err != nil {
			return ListResult{}, err
		}
		if sources == nil {
			sources = []string{}
		}
		return ListResult{Documents: sources}, nil
	})
}

func (d Deps) deleteSource(ctx context.Context, run *workflow.Run) (any, error) {
	var p DeletePayload
	if err := run.Bind(&p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return nil, ragerr.New(ragerr.KindValidation, "pipeline: source_id must not be empty")
	}

	return workflow.Step(ctx, run, "delete-source", func(ctx context.Context) (DeleteResult, error) {
		existed, err := d.Store.DeleteBySource(ctx, p.SourceID)
		if err != nil {
			return DeleteResult{}, err
		}
		logging.FromContext(ctx).Info("document deleted",
			slog.String("source", p.SourceID),
			slog.Bool("existed", existed),
		)
		return DeleteResult{Deleted: existed, SourceID: p.SourceID}, nil
	})
}
