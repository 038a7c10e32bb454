package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SebastianCielma/RAG/internal/llm"
	"github.com/SebastianCielma/RAG/internal/retrieval"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// ChatTimeout caps a single /api/chat request from retrieval to the last
	// streamed token. The server itself keeps WriteTimeout at zero so the
	// stream is never cut mid-write; this deadline is enforced on the request
	// context instead. Defaults to 5 minutes.
	ChatTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 5 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 10 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics is the Prometheus registry the server registers its metrics
	// against and serves from GET /metrics. If nil a fresh registry is used.
	Metrics *prometheus.Registry
}

// retriever is the interface handleChat uses to assemble context for a
// question. *retrieval.Assembler satisfies it; tests inject a fake.
type retriever interface {
	// Retrieve embeds question and returns the topK nearest chunks.
	Retrieve(ctx context.Context, question string, topK int, sourceFilter string) (retrieval.Retrieved, error)
}

// streamer is the interface handleChat uses to generate the answer.
// *llm.Client satisfies it; tests inject a fake.
type streamer interface {
	// StreamChat streams answer fragments; the channel always closes.
	StreamChat(ctx context.Context, msgs []*schema.Message, modelName string) <-chan llm.Chunk
}

// runner is the interface the event endpoints use to start and inspect
// workflow runs. *workflow.Engine satisfies it; tests inject a fake.
type runner interface {
	// Trigger persists and enqueues a run for event, returning the event ID.
	Trigger(ctx context.Context, event string, payload any) (string, error)
	// RunsForEvent returns the runs spawned by a previously triggered event.
	RunsForEvent(ctx context.Context, eventID string) ([]workflow.RunStatus, error)
}

// Server is the HTTP front end of the RAG service: the synchronous streaming
// chat endpoint plus the asynchronous workflow trigger/poll endpoints.
type Server struct {
	// retriever assembles the citation-indexed context for chat questions.
	retriever retriever
	// streamer generates the streamed chat answer.
	streamer streamer
	// runner starts and reports workflow runs for the event endpoints.
	runner runner
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// Model selects the chat model; empty means the configured default.
	Model string `json:"model,omitempty"`
	// TopK is the number of chunks to retrieve (default 5).
	TopK int `json:"top_k,omitempty"`
	// SourceFilter restricts retrieval to a single source ID when non-empty.
	SourceFilter string `json:"source_filter,omitempty"`
}

// chatMetadata is the first line of every /api/chat response: one JSON
// object carrying the retrieved sources and chunk texts, index-aligned so
// the UI can map citation [i] back to its source. Answer tokens follow on
// subsequent writes.
type chatMetadata struct {
	// Sources are the source IDs parallel to Contexts, duplicates included.
	Sources []string `json:"sources"`
	// Contexts are the retrieved chunk texts in rank order.
	Contexts []string `json:"contexts"`
}

// eventRequest is the JSON body for POST /api/events.
type eventRequest struct {
	// Name is the event to trigger, e.g. "rag/ingest_pdf".
	Name string `json:"name"`
	// Data is the event payload, passed to the workflow run unparsed.
	Data json.RawMessage `json:"data,omitempty"`
}

// eventResponse is the JSON response for POST /api/events.
type eventResponse struct {
	// IDs lists the accepted event IDs, one per triggered event.
	IDs []string `json:"ids"`
}

// runsResponse is the JSON response for GET /api/events/{id}/runs.
type runsResponse struct {
	// Data lists the runs spawned by the event, oldest first.
	Data []workflow.RunStatus `json:"data"`
}

// errorResponse is the JSON body of every non-streaming error reply.
type errorResponse struct {
	// Error is the human-readable failure message.
	Error string `json:"error"`
	// Type is the error classification, e.g. "ValidationError".
	Type string `json:"type"`
}
