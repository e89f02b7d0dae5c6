package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/orchestrator"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question from the indexed documents and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var (
		topK      int
		threshold float32
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the loaded documents",
		Long: `Retrieve the chunks closest to the question and ask the configured
chat model to answer from them only.

When no chunk passes the score threshold the model is not called and the
answer says no relevant information was found. If the model fails or times
out twice the answer apologises and the sources are still listed.

Examples:
  docqa ask "What color is the sky?"
  docqa ask --top-k 5 --threshold 0.5 "summarise the onboarding guide"
  docqa ask --json "who owns the billing service?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			chatModel, providerCfg, err := buildChatModel(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			var rec orchestrator.Recorder
			if hs := openHistory(log); hs != nil {
				defer func() { _ = hs.Close() }()
				rec = hs
			}

			orch, err := buildOrchestrator(st, chatModel, providerCfg.ModelName(), rec, nil)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise orchestrator: %w", err)
			}

			q := orchestrator.Query{Text: strings.Join(args, " "), TopK: topK}
			if cmd.Flags().Changed("threshold") {
				q.Threshold = &threshold
			}

			res, err := orch.Ask(ctx, q)
			if err != nil {
				return err //nolint:wrapcheck // orchestrator errors are already prefixed
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Answer)
			}
			fmt.Fprintln(out, res.Answer.Text)
			if len(res.Answer.Sources) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(res.Answer.Sources, ", "))
			}
			fmt.Fprintf(out, "Confidence: %.2f\n", res.Answer.Confidence)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default: RETRIEVAL_TOP_K or 3)")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "Minimum chunk score in [0,1]; 0 disables filtering (default: RETRIEVAL_SCORE_THRESHOLD, unset keeps every chunk)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")

	return cmd
}
