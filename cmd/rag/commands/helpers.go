package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SebastianCielma/RAG/internal/docload"
	"github.com/SebastianCielma/RAG/internal/embed"
	"github.com/SebastianCielma/RAG/internal/llm"
	"github.com/SebastianCielma/RAG/internal/pipeline"
	"github.com/SebastianCielma/RAG/internal/retrieval"
	"github.com/SebastianCielma/RAG/internal/vectordb"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// defaultAwaitTimeout bounds how long ingest, query, and docs wait for a
// workflow run to finish before giving up. The run itself keeps going; a
// timed-out wait can be re-checked with the events API.
const defaultAwaitTimeout = 120 * time.Second

// stack bundles the long-lived dependencies every workflow-driving command
// composes at startup: the caching embedding encoder, the Qdrant store, the
// chat client, the retrieval assembler, and a started workflow engine with
// the document pipeline registered on it.
type stack struct {
	backend   embed.Embedder
	encoder   *embed.CachingEncoder
	store     *vectordb.QdrantStore
	client    *llm.Client
	assembler *retrieval.Assembler
	wfStore   *workflow.Store
	engine    *workflow.Engine
	log       *slog.Logger
}

// buildStack composes the full pipeline from the environment and starts the
// workflow engine, which also re-enqueues runs a previous process left
// behind. Metrics from every layer land on reg; nil leaves them
// unregistered, which is what the one-shot CLI commands want.
func buildStack(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*stack, error) {
	if err := embed.Validate(log); err != nil {
		return nil, err
	}

	backend, err := embed.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("initialising embedder: %w", err)
	}
	encoder := embed.NewCachingEncoder(backend, getEnvInt("EMBED_CACHE_SIZE", 0), reg)
	if err := encoder.Warmup(ctx); err != nil {
		log.Warn("embedder warmup failed, first request will be slow", slog.String("error", err.Error()))
	}
	log.Info("embedder ready",
		slog.String("backend", encoder.Name()),
		slog.Int("dimensions", encoder.Dimensions()),
		slog.Int("cache_capacity", encoder.Capacity()),
	)

	store, err := vectordb.NewQdrantStore(vectordb.Config{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "docs"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx, uint64(encoder.Dimensions())); err != nil { //nolint:gosec // dimensions are small and positive
		_ = store.Close()
		return nil, err
	}
	log.Info("qdrant store ready", slog.String("collection", store.Collection()))

	client, err := llm.NewFromEnv(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialising chat model: %w", err)
	}
	log.Info("chat model ready", slog.String("default_model", client.DefaultModelName()))

	assembler, err := retrieval.NewAssembler(encoder, store,
		getEnvInt("RAG_TOP_K", 0), getEnvInt("CONTEXT_TOKEN_BUDGET", 0))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dbPath := os.Getenv("WORKFLOW_DB")
	if dbPath == "" {
		if dbPath, err = workflow.DefaultDBPath(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	wfStore, err := workflow.OpenStore(dbPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("workflow store open", slog.String("path", dbPath))

	wfCfg := workflow.ConfigFromEnv()
	wfCfg.Registry = reg
	engine, err := workflow.New(wfStore, wfCfg)
	if err != nil {
		_ = wfStore.Close()
		_ = store.Close()
		return nil, err
	}

	if err := pipeline.Register(engine, pipeline.Deps{
		Loader:       docload.New(),
		Encoder:      encoder,
		Store:        store,
		Retriever:    assembler,
		LLM:          client,
		ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
	}); err != nil {
		_ = wfStore.Close()
		_ = store.Close()
		return nil, err
	}

	if err := engine.Start(ctx); err != nil {
		_ = wfStore.Close()
		_ = store.Close()
		return nil, err
	}

	return &stack{
		backend:   backend,
		encoder:   encoder,
		store:     store,
		client:    client,
		assembler: assembler,
		wfStore:   wfStore,
		engine:    engine,
		log:       log,
	}, nil
}

// close shuts the stack down in dependency order: the engine first (it waits
// for in-flight runs), then its store, then the Qdrant connection.
func (s *stack) close() {
	if err := s.engine.Close(); err != nil {
		s.log.Warn("workflow engine close", slog.String("error", err.Error()))
	}
	if err := s.wfStore.Close(); err != nil {
		s.log.Warn("workflow store close", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("qdrant close", slog.String("error", err.Error()))
	}
}

// getEnvOrDefault returns the env var value or a fallback if unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or a fallback if unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat returns the env var parsed as float64, or a fallback if unset
// or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
