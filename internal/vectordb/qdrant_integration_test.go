//go:build integration

package vectordb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestQdrantStore_Integration exercises the full point lifecycle against a
// live Qdrant instance: collection creation, acknowledged upsert, plain and
// source-filtered search, source listing, deletion by source, and collection
// teardown.
//
// Prerequisites:
//
//	docker run -p 6334:6334 qdrant/qdrant
//
// Run with:
//
//	go test -tags=integration -run TestQdrantStore_Integration ./internal/vectordb/
//
// Set QDRANT_HOST / QDRANT_PORT if Qdrant is not on localhost:6334.
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := os.Getenv("QDRANT_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// A per-run collection name keeps concurrent CI jobs from clobbering
	// each other.
	collection := fmt.Sprintf("vectordb-it-%d", time.Now().UnixNano())
	s, err := NewQdrantStore(Config{Host: host, Port: port, Collection: collection})
	if err != nil {
		t.Fatalf("NewQdrantStore() failed: %v", err)
	}
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() failed: %v\n\nEnsure Qdrant is running:\n  docker run -p 6334:6334 qdrant/qdrant", err)
	}

	const dim = 4
	if err := s.EnsureCollection(ctx, dim); err != nil {
		t.Fatalf("EnsureCollection() failed: %v", err)
	}
	if err := s.EnsureCollection(ctx, dim); err != nil {
		t.Fatalf("EnsureCollection() is not idempotent: %v", err)
	}
	defer func() {
		if err := s.DeleteCollection(ctx); err != nil {
			t.Logf("cleanup: DeleteCollection() failed: %v", err)
		}
	}()

	// Qdrant only accepts UUID (or integer) point IDs, so derive them the
	// same way ingestion does: name-based UUIDs over source:index.
	chunkID := func(source string, i int) string {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", source, i))).String()
	}

	ids := []string{
		chunkID("birds.txt", 0),
		chunkID("birds.txt", 1),
		chunkID("fish.txt", 0),
	}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 1, 0, 0},
	}
	payloads := []Payload{
		{Source: "birds.txt", Text: "Penguins cannot fly."},
		{Source: "birds.txt", Text: "Albatrosses glide for hours."},
		{Source: "fish.txt", Text: "Tuna are fast swimmers."},
	}

	n, err := s.Upsert(ctx, ids, vectors, payloads)
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Upsert() wrote %d points, want 3", n)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("Count() = %d, want 3", count)
	}

	// Re-upserting the same ID must overwrite, not duplicate.
	n, err = s.Upsert(ctx,
		[]string{ids[0]},
		[][]float32{{1, 0, 0, 0}},
		[]Payload{{Source: "birds.txt", Text: "Penguins swim instead."}},
	)
	if err != nil {
		t.Fatalf("re-Upsert() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("re-Upsert() wrote %d points, want 1", n)
	}
	count, err = s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() after re-upsert failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("Count() after re-upsert = %d, want 3 (overwrite, not duplicate)", count)
	}

	// Unfiltered search: nearest two to [1,0,0,0] are the birds chunks.
	res, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2, "")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(res.Contexts) != 2 {
		t.Fatalf("Search() returned %d hits, want 2", len(res.Contexts))
	}
	if res.Contexts[0] != "Penguins swim instead." {
		t.Errorf("top hit = %q, want the re-upserted penguin chunk", res.Contexts[0])
	}
	if res.Sources[0] != "birds.txt" || res.Sources[1] != "birds.txt" {
		t.Errorf("sources = %v, want both birds.txt", res.Sources)
	}

	// Source filter restricts hits even when the vector favours another doc.
	res, err = s.Search(ctx, []float32{1, 0, 0, 0}, 5, "fish.txt")
	if err != nil {
		t.Fatalf("filtered Search() failed: %v", err)
	}
	if len(res.Contexts) != 1 {
		t.Fatalf("filtered Search() returned %d hits, want 1", len(res.Contexts))
	}
	if res.Sources[0] != "fish.txt" {
		t.Errorf("filtered hit source = %q, want fish.txt", res.Sources[0])
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources() failed: %v", err)
	}
	if len(sources) != 2 || sources[0] != "birds.txt" || sources[1] != "fish.txt" {
		t.Fatalf("ListSources() = %v, want [birds.txt fish.txt]", sources)
	}

	existed, err := s.DeleteBySource(ctx, "birds.txt")
	if err != nil {
		t.Fatalf("DeleteBySource() failed: %v", err)
	}
	if !existed {
		t.Error("DeleteBySource(birds.txt) reported existed=false, want true")
	}
	count, err = s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() after delete failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count() after delete = %d, want 1", count)
	}

	existed, err = s.DeleteBySource(ctx, "birds.txt")
	if err != nil {
		t.Fatalf("second DeleteBySource() failed: %v", err)
	}
	if existed {
		t.Error("DeleteBySource() on an already-deleted source reported existed=true")
	}

	existed, err = s.DeleteBySource(ctx, "never-ingested.txt")
	if err != nil {
		t.Fatalf("DeleteBySource() on absent source failed: %v", err)
	}
	if existed {
		t.Error("DeleteBySource() on an absent source reported existed=true")
	}
}
