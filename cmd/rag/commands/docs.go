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

// NewDocsCmd constructs the `rag docs` command group for managing the
// ingested document inventory.
func NewDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage ingested documents",
		Long: `List the documents stored in the vector store, or delete one by source ID.

Source IDs are assigned at ingest time (the base file name by default) and
shown by 'rag docs list'.`,
	}

	cmd.AddCommand(newDocsListCmd(), newDocsDeleteCmd())

	return cmd
}

func newDocsListCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}
			defer st.close()

			run, err := awaitWorkflow(cmd, st, pipeline.EventList, nil, timeout)
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}

			var res pipeline.ListResult
			if err := json.Unmarshal(run.Output, &res); err != nil {
				return fmt.Errorf("docs list: unreadable run output: %w", err)
			}

			if len(res.Documents) == 0 {
				fmt.Println("No documents ingested yet.")
				return nil
			}
			for _, doc := range res.Documents {
				fmt.Println(doc)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultAwaitTimeout, "Max time to wait for the listing")

	return cmd
}

func newDocsDeleteCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "delete <source>",
		Short: "Delete an ingested document by source ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			defer st.close()

			run, err := awaitWorkflow(cmd, st, pipeline.EventDelete, pipeline.DeletePayload{SourceID: args[0]}, timeout)
			if err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}

			var res pipeline.DeleteResult
			if err := json.Unmarshal(run.Output, &res); err != nil {
				return fmt.Errorf("docs delete: unreadable run output: %w", err)
			}

			if res.Deleted {
				fmt.Printf("Deleted %q.\n", res.SourceID)
			} else {
				fmt.Printf("No document stored under %q.\n", res.SourceID)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultAwaitTimeout, "Max time to wait for the deletion")

	return cmd
}

// awaitWorkflow triggers event with payload and blocks until its run reaches
// a terminal state, failing on anything but a completed run.
func awaitWorkflow(cmd *cobra.Command, st *stack, event string, payload any, timeout time.Duration) (workflow.RunStatus, error) {
	ctx := cmd.Context()

	eventID, err := st.engine.Trigger(ctx, event, payload)
	if err != nil {
		return workflow.RunStatus{}, err
	}

	run, err := st.engine.AwaitRun(ctx, eventID, timeout)
	if err != nil {
		return workflow.RunStatus{}, err
	}
	if run.Status != workflow.StatusCompleted {
		return workflow.RunStatus{}, fmt.Errorf("%s", run.Error)
	}
	return run, nil
}
