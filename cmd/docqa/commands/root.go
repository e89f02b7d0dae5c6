// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "docqa answers questions from the documents you load into it",
		Long: `docqa is a retrieval-augmented question-answering service.

Documents (web pages, PDFs, scanned images, plain text) are split into
chunks, embedded, and stored in a vector index. Questions are answered by a
language model grounded only in the closest chunks, with the sources cited.

The index backend is selected with INDEX_BACKEND, the embedding backend with
EMBEDDING_PROVIDER and the chat model with MODEL_PROVIDER, or through a YAML
config file (~/.docqa/config.yaml). A .env file in the working directory is
loaded first and never overrides variables that are already set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Rebuild after the config file may have set LOG_LEVEL/LOG_FORMAT.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return root
}
