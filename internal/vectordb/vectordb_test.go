package vectordb

import (
	"context"
	"testing"

	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// newLazyStore returns a store whose gRPC channel is never dialled. Only the
// paths that fail before the first RPC may be exercised on it.
func newLazyStore(t *testing.T) *QdrantStore {
	t.Helper()
	s, err := NewQdrantStore(Config{Host: "localhost", Port: 6334, Collection: "unit-test"})
	if err != nil {
		t.Fatalf("NewQdrantStore() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewQdrantStore_Defaults(t *testing.T) {
	t.Parallel()
	s, err := NewQdrantStore(Config{})
	if err != nil {
		t.Fatalf("NewQdrantStore() with zero config failed: %v", err)
	}
	defer s.Close()

	if got := s.Collection(); got != "docs" {
		t.Errorf("default collection = %q, want %q", got, "docs")
	}
}

func TestUpsert_LengthMismatch(t *testing.T) {
	t.Parallel()
	s := newLazyStore(t)

	ids := []string{"a", "b"}
	vectors := [][]float32{{0.1, 0.2}}
	payloads := []Payload{{Source: "x"}, {Source: "y"}}

	n, err := s.Upsert(context.Background(), ids, vectors, payloads)
	if err == nil {
		t.Fatal("Upsert() with mismatched slice lengths succeeded, want error")
	}
	if !ragerr.IsKind(err, ragerr.KindValidation) {
		t.Errorf("error kind = %q, want %q", ragerr.KindOf(err), ragerr.KindValidation)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestUpsert_EmptyBatchIsNoOp(t *testing.T) {
	t.Parallel()
	s := newLazyStore(t)

	// An empty upsert must return before any RPC: the lazy client would fail
	// the call otherwise, since nothing is listening on the test address.
	n, err := s.Upsert(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Upsert() with empty batch failed: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestSearch_RejectsNonPositiveTopK(t *testing.T) {
	t.Parallel()
	s := newLazyStore(t)

	for _, topK := range []int{0, -3} {
		_, err := s.Search(context.Background(), []float32{0.1, 0.2}, topK, "")
		if err == nil {
			t.Fatalf("Search(topK=%d) succeeded, want error", topK)
		}
		if !ragerr.IsKind(err, ragerr.KindValidation) {
			t.Errorf("Search(topK=%d) error kind = %q, want %q", topK, ragerr.KindOf(err), ragerr.KindValidation)
		}
	}
}

func TestSearchResult_Empty(t *testing.T) {
	t.Parallel()
	var zero SearchResult
	if !zero.Empty() {
		t.Error("zero SearchResult should be empty")
	}

	res := SearchResult{Contexts: []string{"chunk"}, Sources: []string{"doc"}}
	if res.Empty() {
		t.Error("populated SearchResult should not be empty")
	}
}
