package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docsift/docsift/internal/model"
)

var (
	cfgFile string
	verbose bool

	indexBackend string
	indexPath    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docsift",
	Short: "Docsift - retrieval-grounded structured field extraction",
	Long: `Docsift ingests documents into a vector index and extracts structured
field values (strings, dates, amounts, percentages) from them.

Every extracted value carries provenance: the exact chunks of the source
documents it was taken from. A value the evidence does not support is
reported as null, never guessed.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("docsift v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.docsift/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&indexBackend, "index", "", "index backend (memory, sqlite)")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index-path", "", "index file path for the sqlite backend")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("index.backend", rootCmd.PersistentFlags().Lookup("index"))
	_ = viper.BindPFlag("index.path", rootCmd.PersistentFlags().Lookup("index-path"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.docsift")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match DOCSIFT_*
	viper.SetEnvPrefix("DOCSIFT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig assembles the runtime configuration: defaults, then config
// file and environment via viper, then API keys from their conventional
// environment variables. Keys never come from the config file.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	cfg.Output.Verbose = verbose

	switch cfg.Embedding.Provider {
	case "openai":
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.Embedding.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}

	return cfg, nil
}
