package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ctxrank/internal/usecase"
)

var (
	queryTopN     int
	queryJSON     bool
	queryEvaluate bool
)

func init() {
	rootCmd.Flags().IntVarP(&queryTopN, "n-contexts", "n", 0, "number of contexts to show (default 5, from config)")
	rootCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	rootCmd.Flags().BoolVarP(&queryEvaluate, "evaluate", "e", false, "evaluate retrieval on the dataset questions instead of querying")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if queryEvaluate {
		return evaluate(cmd, cfg.Evaluate.NumSamples, cfg.Evaluate.Repeat, cfg.Evaluate.Seed, cfg.Evaluate.TopK, queryJSON)
	}
	if len(args) == 0 {
		return fmt.Errorf("a query is required unless --evaluate is set")
	}

	topN := cfg.Retrieve.TopN
	if cmd.Flags().Changed("n-contexts") {
		if queryTopN <= 0 {
			return fmt.Errorf("%w: --n-contexts must be positive, got %d", usecase.ErrInvalidArgument, queryTopN)
		}
		topN = queryTopN
	}

	eng, err := openEngine(cmd, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	ranker, err := eng.index.Retriever(eng.embedder)
	if err != nil {
		return err
	}

	results, err := usecase.NewRetrieveUseCase(ranker).Retrieve(args[0], topN)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		return writeJSON(out, results)
	}
	printContexts(out, results)
	return nil
}

func printContexts(w io.Writer, results []usecase.ContextResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No contexts found.")
		return
	}
	for _, r := range results {
		fmt.Fprintln(w, "-------------------")
		fmt.Fprintf(w, "Context n°%d:\n", r.Rank)
		fmt.Fprintln(w, "-------------------")
		fmt.Fprintln(w, r.Text)
		fmt.Fprintf(w, "Similarity score: %.2f%%\n", r.Score*100)
	}
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
