package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/pipeline"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// NewIngestCmd constructs the `rag ingest` command, which loads documents
// into the vector store through the durable ingest workflow.
func NewIngestCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the vector store",
		Long: `Chunk, embed, and index documents so questions can be answered over them.

Each file runs as one durable workflow: a run interrupted by a crash resumes
on the next start without re-embedding finished batches, and re-ingesting a
file overwrites its previous chunks instead of duplicating them.

The source ID of a document is its base file name. Use it with
'rag query --source' and 'rag docs delete'.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docs)
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai (default: ollama)

Examples:
  rag ingest ./docs/handbook.md
  rag ingest notes.txt meeting-minutes.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer st.close()

			failed := 0
			for _, path := range args {
				sourceID := filepath.Base(path)

				eventID, err := st.engine.Trigger(ctx, pipeline.EventIngest, pipeline.IngestPayload{
					FilePath: path,
					SourceID: sourceID,
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed++
					continue
				}

				run, err := st.engine.AwaitRun(ctx, eventID, timeout)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed++
					continue
				}
				if run.Status != workflow.StatusCompleted {
					fmt.Fprintf(os.Stderr, "%s: %s\n", path, run.Error)
					failed++
					continue
				}

				var res pipeline.IngestResult
				if err := json.Unmarshal(run.Output, &res); err != nil {
					log.Warn("unreadable run output", slog.String("run_id", run.RunID), slog.String("error", err.Error()))
				}
				fmt.Printf("%s: ingested %d chunks (source %q)\n", path, res.Ingested, sourceID)
			}

			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultAwaitTimeout, "Max time to wait for each document")

	return cmd
}
