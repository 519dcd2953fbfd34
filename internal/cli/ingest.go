package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/pipeline"
)

var (
	ingestID      string
	ingestTimeout time.Duration
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <uri>...",
	Short: "Ingest documents into the index",
	Long: `Ingest splits each document into overlapping chunks, embeds them, and
stores them in the vector index. Re-ingesting a document ID replaces its
prior chunks.

URIs may be local file paths or http(s) URLs.

Example:
  docsift ingest contract.txt
  docsift ingest --id trade-1 confirmations/trade-1.txt
  docsift ingest https://example.com/filings/10k.html --index sqlite --index-path ./docsift.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document ID (single URI only; default derives from the URI)")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 5*time.Minute, "overall ingestion timeout")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestID != "" && len(args) > 1 {
		return fmt.Errorf("--id applies to a single URI, got %d", len(args))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if ingestID != "" {
		result, err := p.IngestURI(ctx, ingestID, args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	outcomes := p.IngestBatch(ctx, args)
	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", o.URI, o.Err)
			continue
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "ingested %s as %s (%d chunks)\n", o.URI, o.DocumentID, o.Result.ChunkCount)
		}
	}
	if err := printJSON(outcomes); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(outcomes))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
