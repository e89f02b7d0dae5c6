package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which loads documents
// into the vector index without starting the server.
func NewIngestCmd() *cobra.Command {
	var urls []string
	var files []string
	var fileType string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load web pages and files into the vector index",
		Long: `Fetch, extract, chunk, embed and index documents.

URLs may point at HTML pages or PDFs. Files are classified by extension
(.pdf, .png, .jpg, .jpeg, .txt, .md); --type names the type for files
without a usable extension. Images are read with the tesseract binary.

Each document is indexed atomically: a failure leaves the index as it was
for that document and ingestion continues with the next one. The command
fails if any document failed.

Examples:
  docqa ingest --url https://go.dev/doc/effective_go
  docqa ingest --file handbook.pdf --file scan.png
  docqa ingest --file README --type md`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if len(urls) == 0 && len(files) == 0 {
				return fmt.Errorf("ingest: at least one --url or --file is required")
			}

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer st.Close()

			loader, err := buildLoader(st, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			var failed int
			report := func(res ingestion.Result, err error, source string) {
				if err != nil {
					failed++
					log.Error("ingest: document failed", slog.String("source", source), slog.Any("error", err))
					return
				}
				log.Info("ingest: document indexed",
					slog.String("source", res.Source),
					slog.String("kind", string(res.Kind)),
					slog.Int("chunks", res.Chunks),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", res.Source, res.Chunks)
			}

			for _, u := range urls {
				res, err := loader.LoadURL(ctx, u)
				report(res, err, u)
			}
			for _, path := range files {
				res, err := loadPath(cmd, loader, path, fileType)
				report(res, err, path)
			}

			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d documents failed", failed, len(urls)+len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "File to ingest (repeatable)")
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "File type for files without a known extension (pdf, png, jpg, txt, md)")

	return cmd
}

// loadPath reads path and loads it under its base name.
func loadPath(cmd *cobra.Command, loader *ingestion.Loader, path, hint string) (ingestion.Result, error) {
	name := filepath.Base(path)
	kind, err := ingestion.ResolveKind(name, hint)
	if err != nil {
		return ingestion.Result{}, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is an explicit CLI argument
	if err != nil {
		return ingestion.Result{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return loader.LoadFileKind(cmd.Context(), name, kind, data)
}
