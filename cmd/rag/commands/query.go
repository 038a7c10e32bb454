package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/pipeline"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// NewQueryCmd constructs the `rag query` command, which answers a single
// question over the ingested documents through the query workflow.
func NewQueryCmd() *cobra.Command {
	var topK int
	var model string
	var source string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question about the ingested documents",
		Long: `Answer a natural language question using the ingested documents as the only
source of truth. The answer cites its sources; when nothing relevant is
stored, the command says so instead of guessing.

Examples:
  rag query "What were the Q3 revenue numbers?"
  rag query --source handbook.md "How many vacation days do we get?"
  rag query --top-k 8 "Summarise the incident response process"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer st.close()

			eventID, err := st.engine.Trigger(ctx, pipeline.EventQuery, pipeline.QueryPayload{
				Question:     args[0],
				TopK:         topK,
				Model:        model,
				SourceFilter: source,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			run, err := st.engine.AwaitRun(ctx, eventID, timeout)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			if run.Status != workflow.StatusCompleted {
				return fmt.Errorf("query: %s", run.Error)
			}

			var res pipeline.QueryResult
			if err := json.Unmarshal(run.Output, &res); err != nil {
				return fmt.Errorf("query: unreadable run output: %w", err)
			}

			fmt.Println(res.Answer)
			if len(res.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range res.Sources {
					fmt.Printf("  - %s\n", s)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default 5)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Chat model to answer with (default: MODEL_NAME)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Restrict retrieval to one source ID")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultAwaitTimeout, "Max time to wait for the answer")

	return cmd
}
