package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// Step executes fn at most once per run. When (run, name) already has a
// stored output, it is decoded and returned without executing fn — this is
// what makes retries and crash recovery cheap: completed steps replay from
// the store. Outputs round-trip through JSON, so T must marshal losslessly.
//
// Steps inside a handler must run in a deterministic order under stable
// names; renaming a step invalidates its memoized output.
func Step[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if name == "" {
		return zero, ragerr.New(ragerr.KindValidation, "workflow: step name must not be empty")
	}

	stored, ok, err := run.store.stepOutput(ctx, run.ID, name)
	if err != nil {
		return zero, err
	}
	if ok {
		run.metrics.stepsTotal.WithLabelValues("memoized").Inc()
		logging.FromContext(ctx).Debug("step replayed from store",
			slog.String("run_id", run.ID),
			slog.String("step", name),
		)
		var out T
		if err := json.Unmarshal(stored, &out); err != nil {
			return zero, fmt.Errorf("workflow: decoding stored output of step %q: %w", name, err)
		}
		return out, nil
	}

	run.metrics.stepsTotal.WithLabelValues("executed").Inc()
	out, err := fn(ctx)
	if err != nil {
		return zero, fmt.Errorf("workflow: step %q: %w", name, err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("workflow: encoding output of step %q: %w", name, err)
	}
	if err := run.store.saveStepOutput(ctx, run.ID, name, raw); err != nil {
		return zero, err
	}
	return out, nil
}
