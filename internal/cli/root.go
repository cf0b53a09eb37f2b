package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ctxrank/config"
	"ctxrank/internal/logging"
)

var (
	cfgFile     string
	cfg         *config.Config
	cacheDir    string
	datasetPath string
	force       bool
)

var rootCmd = &cobra.Command{
	Use:   "ctxrank <query>",
	Short: "Rank SQuAD paragraphs by semantic similarity to a question",
	Long: `ctxrank embeds every paragraph of a SQuAD-formatted dataset, caches the
embeddings on disk and returns the paragraphs most similar to a query.

Example usage:
  ctxrank "What is the capital of Normandy?"   # Top 5 contexts
  ctxrank -n 3 -d squad1.1/train-v1.1.json "Who was Rollo?"
  ctxrank -e                                   # Evaluate retrieval accuracy
  ctxrank cache list                           # Show cached embeddings`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(".")
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cacheDir != "" {
			cfg.Cache.Dir = cacheDir
		}
		if datasetPath != "" {
			cfg.Dataset.Path = datasetPath
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
		return nil
	},
	RunE: runQuery,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ctxrank.yaml)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "embedding cache directory (default from config)")
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "", "SQuAD dataset file (default squad1.1/dev-v1.1.json)")
	rootCmd.PersistentFlags().BoolVarP(&force, "force", "f", false, "recompute embeddings even if cached")
}

func GetConfig() *config.Config {
	return cfg
}
