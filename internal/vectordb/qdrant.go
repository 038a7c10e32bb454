package vectordb

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// Payload field names as stored on every Qdrant point.
const (
	payloadSource = "source"
	payloadText   = "text"
)

// scrollPageSize is the page size used when scanning the collection for
// distinct sources.
const scrollPageSize = 256

// Config holds connection parameters for a Qdrant instance.
type Config struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// collection is the target collection name.
	collection string
}

// NewQdrantStore creates a Qdrant-backed Store. The gRPC channel is lazy:
// nothing is dialled until the first RPC, so construction does not require a
// reachable server. Callers should EnsureCollection before the first Upsert
// and Ping when they need to verify connectivity.
func NewQdrantStore(cfg Config) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "docs"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindVectorDB, "qdrant: creating client", err)
	}

	return &QdrantStore{client: client, collection: cfg.Collection}, nil
}

// Collection returns the collection name this store operates on.
func (s *QdrantStore) Collection() string { return s.collection }

// EnsureCollection creates the collection (cosine distance, dim-sized
// vectors) if it does not already exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dim uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return ragerr.Wrap(ragerr.KindVectorDB, "qdrant: checking collection existence", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return ragerr.Wrap(ragerr.KindVectorDB, fmt.Sprintf("qdrant: creating collection %q", s.collection), err)
	}

	return nil
}

// Upsert writes points built from the parallel ids/vectors/payloads slices
// and returns the number written. The call waits for the server to
// acknowledge the write, so a Search issued afterwards sees the new points.
func (s *QdrantStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []Payload) (int, error) {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return 0, ragerr.Newf(ragerr.KindValidation,
			"qdrant: upsert slices must be parallel: %d ids, %d vectors, %d payloads",
			len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i, id := range ids {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadSource: payloads[i].Source,
				payloadText:   payloads[i].Text,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, ragerr.Wrap(ragerr.KindVectorDB, "qdrant: upsert failed", err)
	}

	return len(points), nil
}

// Search performs a cosine similarity search and returns up to topK hits in
// descending score order. Hits whose payload carries no text are dropped.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, sourceFilter string) (SearchResult, error) {
	if topK <= 0 {
		return SearchResult{}, ragerr.Newf(ragerr.KindValidation, "qdrant: topK must be positive, got %d", topK)
	}

	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if sourceFilter != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadSource, sourceFilter)},
		}
	}

	hits, err := s.client.Query(ctx, req)
	if err != nil {
		return SearchResult{}, ragerr.Wrap(ragerr.KindVectorDB, "qdrant: search failed", err)
	}

	res := SearchResult{
		Contexts: make([]string, 0, len(hits)),
		Sources:  make([]string, 0, len(hits)),
	}
	for _, hit := range hits {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}
		text := payload[payloadText].GetStringValue()
		if text == "" {
			continue
		}
		res.Contexts = append(res.Contexts, text)
		res.Sources = append(res.Sources, payload[payloadSource].GetStringValue())
	}

	return res, nil
}

// ListSources scans the collection page by page and returns the distinct
// source IDs, sorted. Only the source payload field is fetched.
func (s *QdrantStore) ListSources(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	var offset *qdrant.PointId
	for {
		// The low-level points client is used here because the high-level
		// Scroll wrapper discards the next-page cursor.
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude(payloadSource),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return nil, ragerr.Wrap(ragerr.KindVectorDB, "qdrant: scrolling collection", err)
		}

		for _, pt := range resp.GetResult() {
			if src := pt.GetPayload()[payloadSource].GetStringValue(); src != "" {
				seen[src] = struct{}{}
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	return sources, nil
}

// DeleteBySource removes every point whose source payload matches source and
// reports whether any such points existed. Deleting an absent source is
// success, not an error.
func (s *QdrantStore) DeleteBySource(ctx context.Context, source string) (bool, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadSource, source)},
	}

	matched, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return false, ragerr.Wrap(ragerr.KindVectorDB, "qdrant: counting points for delete", err)
	}
	if matched == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return false, ragerr.Wrap(ragerr.KindVectorDB, fmt.Sprintf("qdrant: deleting source %q", source), err)
	}

	return true, nil
}

// DeleteCollection drops the whole collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return ragerr.Wrap(ragerr.KindVectorDB, fmt.Sprintf("qdrant: deleting collection %q", s.collection), err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, ragerr.Wrap(ragerr.KindVectorDB, "qdrant: count failed", err)
	}
	return n, nil
}

// Ping verifies the server is reachable via the health check RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return ragerr.Wrap(ragerr.KindVectorDB, "qdrant: health check failed", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
