package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SebastianCielma/RAG/internal/version"
)

// NewVersionCmd constructs the `rag version` subcommand.
// It prints the service version plus the git commit and build date injected
// at build time via -ldflags; local builds show "unknown" for both.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rag version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rag %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.BuildDate)
		},
	}
}
