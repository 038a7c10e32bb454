package workflow

import (
	"context"
	"testing"

	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// newTestRun inserts a run backed by an in-memory store and returns it wired
// for direct Step calls, without spinning up an engine.
func newTestRun(t *testing.T) *Run {
	t.Helper()
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.insertEvent(ctx, "ev-1", "test/step", []byte(`{}`)); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := s.insertRun(ctx, "run-1", "ev-1", "Step"); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	return &Run{
		ID:      "run-1",
		EventID: "ev-1",
		Event:   "test/step",
		Payload: []byte(`{}`),
		store:   s,
		metrics: newEngineMetrics(nil),
	}
}

func Test_Step_MemoizesOutput(t *testing.T) {
	t.Parallel()
	run := newTestRun(t)
	ctx := quietCtx()

	calls := 0
	fn := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"alpha", "beta"}, nil
	}

	first, err := Step(ctx, run, "chunks", fn)
	if err != nil {
		t.Fatalf("first step call: %v", err)
	}
	second, err := Step(ctx, run, "chunks", fn)
	if err != nil {
		t.Fatalf("second step call: %v", err)
	}

	if calls != 1 {
		t.Errorf("fn executed %d times, want 1", calls)
	}
	if len(second) != 2 || second[0] != first[0] || second[1] != first[1] {
		t.Errorf("replayed output = %v, want %v", second, first)
	}
}

func Test_Step_DistinctNamesExecuteSeparately(t *testing.T) {
	t.Parallel()
	run := newTestRun(t)
	ctx := quietCtx()

	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	if _, err := Step(ctx, run, "first", fn); err != nil {
		t.Fatalf("first step: %v", err)
	}
	if _, err := Step(ctx, run, "second", fn); err != nil {
		t.Fatalf("second step: %v", err)
	}
	if calls != 2 {
		t.Errorf("fn executed %d times, want 2", calls)
	}
}

func Test_Step_FailureIsNotMemoized(t *testing.T) {
	t.Parallel()
	run := newTestRun(t)
	ctx := quietCtx()

	calls := 0
	fn := func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", ragerr.New(ragerr.KindEmbedding, "encoder offline")
		}
		return "recovered", nil
	}

	if _, err := Step(ctx, run, "embed", fn); err == nil {
		t.Fatal("first call succeeded, want error")
	}
	out, err := Step(ctx, run, "embed", fn)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if out != "recovered" {
		t.Errorf("output = %q, want recovered", out)
	}
	if calls != 2 {
		t.Errorf("fn executed %d times, want 2 (failures must not be stored)", calls)
	}
}

func Test_Step_PreservesErrorKind(t *testing.T) {
	t.Parallel()
	run := newTestRun(t)

	_, err := Step(quietCtx(), run, "search", func(ctx context.Context) (int, error) {
		return 0, ragerr.New(ragerr.KindVectorDB, "qdrant unreachable")
	})
	if err == nil {
		t.Fatal("step succeeded, want error")
	}
	if !ragerr.IsKind(err, ragerr.KindVectorDB) {
		t.Errorf("error kind = %q, want %q (wrapping must keep the kind)", ragerr.KindOf(err), ragerr.KindVectorDB)
	}
	if !ragerr.Retryable(err) {
		t.Error("vector store failure should stay retryable through the step wrapper")
	}
}

func Test_Step_EmptyNameRejected(t *testing.T) {
	t.Parallel()
	run := newTestRun(t)

	_, err := Step(quietCtx(), run, "", func(ctx context.Context) (int, error) { return 1, nil })
	if err == nil {
		t.Fatal("step with empty name succeeded")
	}
	if !ragerr.IsKind(err, ragerr.KindValidation) {
		t.Errorf("error kind = %q, want %q", ragerr.KindOf(err), ragerr.KindValidation)
	}
}

func Test_Step_StructOutputRoundTrips(t *testing.T) {
	t.Parallel()
	run := newTestRun(t)
	ctx := quietCtx()

	type searchOut struct {
		Contexts []string `json:"contexts"`
		Sources  []string `json:"sources"`
	}

	want := searchOut{Contexts: []string{"penguins swim"}, Sources: []string{"birds.txt"}}
	if _, err := Step(ctx, run, "search", func(ctx context.Context) (searchOut, error) {
		return want, nil
	}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	got, err := Step(ctx, run, "search", func(ctx context.Context) (searchOut, error) {
		t.Error("memoized step executed again")
		return searchOut{}, nil
	})
	if err != nil {
		t.Fatalf("replay call: %v", err)
	}
	if len(got.Contexts) != 1 || got.Contexts[0] != want.Contexts[0] || got.Sources[0] != want.Sources[0] {
		t.Errorf("replayed output = %+v, want %+v", got, want)
	}
}
