package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctxrank/config"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Compute and cache the context embeddings of a dataset",
	Long: `Load the dataset and make sure its context embeddings are cached, without
running a query. Use --force to recompute an existing entry.

Examples:
  ctxrank index
  ctxrank index -d squad1.1/train-v1.1.json -f`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	eng, err := openEngine(cmd, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index ready:\n")
	fmt.Fprintf(out, "  Dataset:    %s\n", cfg.Dataset.Path)
	fmt.Fprintf(out, "  Contexts:   %d\n", len(eng.index.Matrix))
	fmt.Fprintf(out, "  Dimension:  %d\n", eng.index.Matrix.Dim())
	fmt.Fprintf(out, "  Model:      %s\n", eng.embedder.ModelName())
	fmt.Fprintf(out, "  Cache key:  %s (%s backend in %s)\n", config.CacheKey(cfg.Dataset.Path), cfg.Cache.Backend, cfg.Cache.Dir)
	return nil
}
