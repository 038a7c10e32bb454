package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/server"
	"github.com/SebastianCielma/RAG/internal/tracing"
)

// NewServeCmd constructs the `rag serve` command, which composes the full
// pipeline and runs the HTTP API server until interrupted.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RAG HTTP API server",
		Long: `Start the HTTP API server exposing the document pipeline.

Endpoints:
  POST /api/chat              Streaming question answering with citations
  POST /api/events            Trigger ingest/query/list/delete workflows
  GET  /api/events/{id}/runs  Poll workflow run status
  GET  /health                Liveness probe
  GET  /api/ready             Dependency readiness probe
  GET  /metrics               Prometheus metrics

Set RAG_API_KEY to require Bearer token authentication on /api/ routes.
Runs left unfinished by a previous process are resumed on startup.

Required services:
  Qdrant (QDRANT_HOST, QDRANT_PORT) and an embedding backend
  (EMBEDDING_PROVIDER). A chat model provider (MODEL_PROVIDER plus its
  credentials) is needed to generate answers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			// Langfuse tracing is opt-in; buffered traces flush on the way
			// out, after the engine has drained.
			flush := tracing.Install(tracing.ConfigFromEnv(), log)
			defer flush()

			reg := prometheus.NewRegistry()

			st, err := buildStack(ctx, log, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.close()

			// Explicit flags win; otherwise the SERVER_HOST/SERVER_PORT env
			// (possibly set from YAML config) applies.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			srv, err := server.New(st.assembler, st.client, st.engine, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				APIKey:    os.Getenv("RAG_API_KEY"),
				RateLimit: getEnvFloat("RATE_LIMIT_RPS", 0),
				RateBurst: getEnvInt("RATE_LIMIT_BURST", 0),
				Metrics:   reg,
				Pingers: []server.Pinger{
					server.NewQdrantPinger(st.store),
					server.NewEmbedderPinger(st.backend),
					server.NewLLMPinger(st.client, getEnvOrDefault("MODEL_PROVIDER", "groq")),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind the server to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "Port to run the server on")

	return cmd
}
