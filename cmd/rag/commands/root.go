// Package commands defines all Cobra CLI commands for the rag binary.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/SebastianCielma/RAG/internal/audit"
	"github.com/SebastianCielma/RAG/internal/config"
	"github.com/SebastianCielma/RAG/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// logLevel and logFormat hold the persistent logging flags. They are applied
// as env vars before the logger is built, so a flag beats the environment
// and both beat YAML.
var (
	logLevel  string
	logFormat string
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rag",
		Short: "RAG — document question answering over a local vector store",
		Long: `rag ingests documents into a Qdrant vector store and answers natural
language questions about them, citing the source of every answer.

Ingestion and querying run as durable workflows: a run interrupted by a
crash resumes on the next start without repeating finished work. The serve
command exposes the same pipeline over HTTP with a streaming chat endpoint.

Model and embedding providers are selected via environment variables or a
YAML config file (~/.rag/config.yaml).
See 'rag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if logLevel != "" {
				os.Setenv("LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				os.Setenv("LOG_FORMAT", logFormat)
			}
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), path)

			// Subcommands pull the logger back out with logging.FromContext.
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.rag/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json, text (default: json)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewQueryCmd(),
		NewDocsCmd(),
		NewVersionCmd(),
	)

	return root
}
