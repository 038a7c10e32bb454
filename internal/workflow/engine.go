package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
)

const (
	// DefaultWorkers is the number of runs executed concurrently.
	DefaultWorkers = 4

	// DefaultRetries is how many times a failed run is retried beyond its
	// first attempt.
	DefaultRetries = 3

	// DefaultAwaitTimeout bounds AwaitRun when the caller passes none.
	DefaultAwaitTimeout = 120 * time.Second

	// retryBackoffBase seeds the fibonacci backoff between run attempts.
	retryBackoffBase = 500 * time.Millisecond

	// awaitPollInterval is how often AwaitRun re-reads run state.
	awaitPollInterval = 500 * time.Millisecond

	// queueDepth bounds how many runs may wait for a worker before Trigger
	// blocks.
	queueDepth = 256
)

// Function is a workflow definition: an event name bound to a handler.
type Function struct {
	// ID is the human-readable function name recorded on each run. Defaults
	// to the event name.
	ID string

	// Event is the event name that triggers the function.
	Event string

	// Retries overrides the engine's per-run retry budget when positive.
	Retries int

	// Handler executes one run. Use Step inside it to checkpoint work that
	// must not repeat across retries or restarts.
	Handler func(ctx context.Context, run *Run) (any, error)
}

// Run is the execution context handed to a handler.
type Run struct {
	ID      string
	EventID string
	Event   string
	Payload json.RawMessage

	store   *Store
	metrics *engineMetrics
}

// Bind decodes the triggering event's payload into v.
func (r *Run) Bind(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return ragerr.Wrap(ragerr.KindValidation, "workflow: decoding event payload", err)
	}
	return nil
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	// Workers is the number of runs executed concurrently.
	Workers int

	// Retries is the default per-run retry budget. Function.Retries
	// overrides it per function.
	Retries int

	// Registry receives the engine's Prometheus metrics. Nil leaves them
	// unregistered.
	Registry prometheus.Registerer
}

// ConfigFromEnv reads engine tuning from the environment:
//
//	WORKFLOW_WORKERS      runs executed concurrently (default 4)
//	WORKFLOW_MAX_RETRIES  retry budget per run (default 3)
func ConfigFromEnv() Config {
	return Config{
		Workers: getEnvInt("WORKFLOW_WORKERS", DefaultWorkers),
		Retries: getEnvInt("WORKFLOW_MAX_RETRIES", DefaultRetries),
	}
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// queuedRun is the unit of work handed to the worker pool.
type queuedRun struct {
	runID   string
	eventID string
	event   string
	payload json.RawMessage
}

// Engine executes registered functions against triggered events. Every state
// transition is persisted, so runs interrupted by a crash resume on the next
// Start and their memoized steps are not repeated.
type Engine struct {
	store   *Store
	cfg     Config
	metrics *engineMetrics

	mu        sync.Mutex
	functions map[string]*Function
	started   bool
	closed    bool

	queue   chan queuedRun
	done    chan struct{}
	workers errgroup.Group
	baseCtx context.Context
}

// New builds an engine over an opened store. The engine does not own the
// store; the caller closes it after Close returns.
func New(store *Store, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow: store must not be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	return &Engine{
		store:     store,
		cfg:       cfg,
		metrics:   newEngineMetrics(cfg.Registry),
		functions: make(map[string]*Function),
		queue:     make(chan queuedRun, queueDepth),
		done:      make(chan struct{}),
	}, nil
}

// Register binds fn to its trigger event. Must be called before Start.
func (e *Engine) Register(fn Function) error {
	if fn.Event == "" || fn.Handler == nil {
		return ragerr.New(ragerr.KindConfiguration, "workflow: function needs an event name and a handler")
	}
	if fn.ID == "" {
		fn.ID = fn.Event
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ragerr.Newf(ragerr.KindConfiguration, "workflow: cannot register %q after Start", fn.Event)
	}
	if _, dup := e.functions[fn.Event]; dup {
		return ragerr.Newf(ragerr.KindConfiguration, "workflow: event %q already registered", fn.Event)
	}
	e.functions[fn.Event] = &fn
	return nil
}

// Start launches the worker pool and re-enqueues runs left Running by a
// previous process. Handlers are not cancelled when ctx ends; shutdown goes
// through Close, which waits for in-flight runs.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("workflow: engine is closed")
	}
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("workflow: engine already started")
	}
	e.started = true
	// Keep the logger and trace values from ctx but detach cancellation:
	// an in-flight run finishes or exhausts retries regardless of the
	// caller's lifetime.
	e.baseCtx = context.WithoutCancel(ctx)
	e.mu.Unlock()

	for range e.cfg.Workers {
		e.workers.Go(func() error {
			for {
				select {
				case <-e.done:
					return nil
				case qr := <-e.queue:
					e.execute(e.baseCtx, qr)
				}
			}
		})
	}

	return e.recover(ctx)
}

// recover re-enqueues runs interrupted by a previous process. Memoized steps
// keep the replay cheap: only work without a stored output executes again.
func (e *Engine) recover(ctx context.Context) error {
	pending, err := e.store.pendingRuns(ctx)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx)
	for _, qr := range pending {
		log.Info("recovering interrupted run",
			slog.String("run_id", qr.runID),
			slog.String("event", qr.event),
		)
		e.metrics.runsStarted.Inc()
		select {
		case e.queue <- qr:
		case <-e.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Trigger persists the event, spawns a Running run for the registered
// function, and returns the event id immediately. Poll RunsForEvent or block
// on AwaitRun for the outcome.
func (e *Engine) Trigger(ctx context.Context, event string, payload any) (string, error) {
	e.mu.Lock()
	_, ok := e.functions[event]
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", fmt.Errorf("workflow: engine is closed")
	}
	if !ok {
		return "", ragerr.Newf(ragerr.KindValidation, "workflow: no function registered for event %q", event)
	}

	raw := []byte("{}")
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return "", ragerr.Wrap(ragerr.KindValidation, "workflow: encoding event payload", err)
		}
	}

	eventID := uuid.NewString()
	runID := uuid.NewString()
	if err := e.store.insertEvent(ctx, eventID, event, raw); err != nil {
		return "", err
	}
	if err := e.store.insertRun(ctx, runID, eventID, e.functionID(event)); err != nil {
		return "", err
	}
	e.metrics.runsStarted.Inc()

	// The run is durable at this point. If the enqueue loses the race with
	// Close or ctx, it stays Running in the store and recovers on the next
	// Start.
	select {
	case e.queue <- queuedRun{runID: runID, eventID: eventID, event: event, payload: raw}:
	case <-e.done:
	case <-ctx.Done():
	}
	return eventID, nil
}

func (e *Engine) functionID(event string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn, ok := e.functions[event]; ok {
		return fn.ID
	}
	return event
}

// RunsForEvent returns the runs spawned by the event, oldest first.
func (e *Engine) RunsForEvent(ctx context.Context, eventID string) ([]RunStatus, error) {
	return e.store.runsForEvent(ctx, eventID)
}

// AwaitRun polls until the event's run reaches a terminal status and returns
// it. A non-positive timeout falls back to DefaultAwaitTimeout. An event id
// with no runs fails immediately.
func (e *Engine) AwaitRun(ctx context.Context, eventID string, timeout time.Duration) (RunStatus, error) {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		runs, err := e.store.runsForEvent(ctx, eventID)
		if err != nil {
			return RunStatus{}, err
		}
		if len(runs) == 0 {
			return RunStatus{}, ragerr.Newf(ragerr.KindValidation, "workflow: no runs for event %s", eventID)
		}
		if runs[0].Terminal() {
			return runs[0], nil
		}

		select {
		case <-ctx.Done():
			return RunStatus{}, fmt.Errorf("workflow: waiting for event %s: %w", eventID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops the workers and waits for in-flight runs to finish. Runs still
// queued stay Running in the store and recover on the next Start.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	started := e.started
	e.mu.Unlock()

	if started {
		_ = e.workers.Wait()
	}
	return nil
}

// execute drives one run to a terminal state: handler attempts under
// fibonacci backoff, then a durable status write.
func (e *Engine) execute(ctx context.Context, qr queuedRun) {
	log := logging.FromContext(ctx).With(
		slog.String("run_id", qr.runID),
		slog.String("event", qr.event),
	)

	e.mu.Lock()
	fn := e.functions[qr.event]
	e.mu.Unlock()
	if fn == nil {
		// A recovered run for an event this build no longer registers.
		log.Error("no function registered for recovered run")
		if err := e.store.failRun(ctx, qr.runID, fmt.Sprintf("no function registered for event %q", qr.event), 0); err != nil {
			log.Error("recording run failure", slog.Any("error", err))
		}
		e.metrics.runsFinished.WithLabelValues("failed").Inc()
		return
	}

	run := &Run{
		ID:      qr.runID,
		EventID: qr.eventID,
		Event:   qr.event,
		Payload: qr.payload,
		store:   e.store,
		metrics: e.metrics,
	}

	retries := e.cfg.Retries
	if fn.Retries > 0 {
		retries = fn.Retries
	}

	start := time.Now()
	attempt := 0
	var output any

	backoff := retry.NewFibonacci(retryBackoffBase)
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(retries), backoff), func(ctx context.Context) error {
		attempt++
		out, err := fn.Handler(ctx, run)
		if err != nil {
			if !ragerr.Retryable(err) {
				return err
			}
			if attempt <= retries {
				e.metrics.retriesTotal.Inc()
				log.Warn("run attempt failed, retrying",
					slog.Int("attempt", attempt),
					slog.Any("error", err),
				)
			}
			return retry.RetryableError(err)
		}
		output = out
		return nil
	})
	e.metrics.runDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("run failed",
			slog.Int("attempts", attempt),
			slog.Any("error", err),
		)
		if serr := e.store.failRun(ctx, qr.runID, err.Error(), attempt); serr != nil {
			log.Error("recording run failure", slog.Any("error", serr))
		}
		e.metrics.runsFinished.WithLabelValues("failed").Inc()
		return
	}

	raw, merr := json.Marshal(output)
	if merr != nil {
		log.Error("encoding run output", slog.Any("error", merr))
		if serr := e.store.failRun(ctx, qr.runID, fmt.Sprintf("encoding run output: %v", merr), attempt); serr != nil {
			log.Error("recording run failure", slog.Any("error", serr))
		}
		e.metrics.runsFinished.WithLabelValues("failed").Inc()
		return
	}

	if serr := e.store.completeRun(ctx, qr.runID, raw, attempt); serr != nil {
		log.Error("recording run completion", slog.Any("error", serr))
		return
	}
	e.metrics.runsFinished.WithLabelValues("completed").Inc()
	log.Info("run completed",
		slog.Int("attempts", attempt),
		slog.Duration("duration", time.Since(start)),
	)
}
