package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewStatusCmd constructs the `docqa status` command, which reports the
// configured index and its size.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the index collection, size, metric and structure",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			st, err := buildStack(ctx, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer st.Close()

			n, err := st.index.Size(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			info := st.index.Info()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"collection": st.index.Name(),
				"chunks":     n,
				"backend":    info.Backend,
				"metric":     info.Metric,
				"structure":  info.Structure,
			})
		},
	}
}
