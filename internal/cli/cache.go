package cli

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"ctxrank/internal/adapter/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear cached embeddings",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached embedding matrices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(GetConfig().Cache)
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer st.Close()

		entries, err := st.List()
		if err != nil {
			return fmt.Errorf("failed to list cache: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "Cache is empty.")
			return nil
		}
		fmt.Fprintf(out, "%-30s %-24s %8s %6s  %s\n", "KEY", "MODEL", "ROWS", "DIM", "CREATED")
		for _, e := range entries {
			created := "-"
			if !e.CreatedAt.IsZero() {
				created = e.CreatedAt.Format("2006-01-02 15:04:05")
			}
			model := e.Model
			if model == "" {
				model = "(unreadable)"
			}
			fmt.Fprintf(out, "%-30s %-24s %8d %6d  %s\n", e.Key, model, e.Rows, e.Dim, created)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [pattern]",
	Short: "Delete cached embeddings whose key matches pattern (default all)",
	Long: `Delete cached embedding matrices. Keys are dataset file names and the
optional pattern uses glob syntax including ** and {a,b}.

Examples:
  ctxrank cache clear
  ctxrank cache clear "train-*.json"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := "*"
		if len(args) > 0 {
			pattern = args[0]
		}
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid pattern: %q", pattern)
		}

		st, err := store.Open(GetConfig().Cache)
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer st.Close()

		entries, err := st.List()
		if err != nil {
			return fmt.Errorf("failed to list cache: %w", err)
		}

		deleted := 0
		for _, e := range entries {
			matched, err := doublestar.Match(pattern, e.Key)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			if !matched {
				continue
			}
			if err := st.Delete(e.Key); err != nil {
				return err
			}
			deleted++
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cache entries.\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
