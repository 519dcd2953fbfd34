package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/docsift/docsift/internal/model"
	"github.com/docsift/docsift/internal/pipeline"
)

var (
	fieldsFile     string
	extractScope   []string
	extractTimeout time.Duration
)

// fieldsSpec is the on-disk shape of a fields file.
type fieldsSpec struct {
	Fields []fieldSpec `yaml:"fields"`
	Scope  []string    `yaml:"scope,omitempty"`
}

type fieldSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Query       string `yaml:"query,omitempty"`
}

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured field values from indexed documents",
	Long: `Extract retrieves the most relevant chunks for each requested field and
asks the configured language model to extract the value, strictly from
that evidence. Output is one JSON record per field with value, confidence,
and chunk-level provenance.

The fields file is YAML:

  fields:
    - name: Notional
      description: the notional amount of the trade
      type: currency
    - name: Trade Date
      type: date
  scope: [trade-1]   # optional; defaults to all documents

Example:
  docsift extract --fields fields.yaml
  docsift extract --fields fields.yaml --scope trade-1,trade-2 --llm-provider openai`,
	RunE: runExtract,
}

var (
	llmProviderFlag string
	llmModelFlag    string
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&fieldsFile, "fields", "f", "", "YAML file naming the fields to extract (required)")
	extractCmd.Flags().StringSliceVar(&extractScope, "scope", nil, "restrict retrieval to these document IDs")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 5*time.Minute, "overall extraction timeout")
	extractCmd.Flags().StringVar(&llmProviderFlag, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	extractCmd.Flags().StringVar(&llmModelFlag, "llm-model", "", "LLM model name")
	_ = extractCmd.MarkFlagRequired("fields")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithLLMFlags()
	if err != nil {
		return err
	}

	requests, fileScope, err := loadFieldsFile(fieldsFile)
	if err != nil {
		return err
	}
	scope := extractScope
	if len(scope) == 0 {
		scope = fileScope
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	if verbose {
		n, _ := p.Len(ctx)
		fmt.Fprintf(os.Stderr, "Extracting %d fields over %d indexed chunks\n", len(requests), n)
	}

	records, err := p.ExtractFields(ctx, scope, requests)
	if err != nil {
		return err
	}
	return printJSON(records)
}

func loadConfigWithLLMFlags() (*model.Config, error) {
	// Flags override the config file, so they must land before key lookup.
	if llmProviderFlag != "" {
		viper.Set("llm.provider", llmProviderFlag)
	}
	if llmModelFlag != "" {
		viper.Set("llm.model", llmModelFlag)
	}
	return loadConfig()
}

// loadFieldsFile parses the YAML fields file into field requests.
func loadFieldsFile(path string) ([]model.FieldRequest, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read fields file: %w", err)
	}

	var spec fieldsSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, nil, fmt.Errorf("parse fields file: %w", err)
	}
	if len(spec.Fields) == 0 {
		return nil, nil, fmt.Errorf("fields file %s names no fields", path)
	}

	seen := make(map[string]bool, len(spec.Fields))
	requests := make([]model.FieldRequest, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		if f.Name == "" {
			return nil, nil, fmt.Errorf("fields file %s: field without a name", path)
		}
		if seen[f.Name] {
			return nil, nil, fmt.Errorf("fields file %s: duplicate field %q", path, f.Name)
		}
		seen[f.Name] = true
		requests = append(requests, model.FieldRequest{
			Name:        f.Name,
			Description: f.Description,
			Type:        model.ParseFieldType(f.Type),
			Query:       f.Query,
		})
	}
	return requests, spec.Scope, nil
}
