package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ctxrank/internal/domain"
	"ctxrank/internal/logging"
	"ctxrank/internal/usecase"
)

var (
	evalSamples int
	evalRepeat  int
	evalSeed    int64
	evalTopK    int
	evalJSON    bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure how often questions retrieve their source paragraph",
	Long: `Sample labelled questions from the dataset, rank every context for each one
and report the mean rank of the correct context, strict top-1 accuracy,
hits@k and mean reciprocal rank for every run.

Examples:
  ctxrank evaluate
  ctxrank evaluate --samples 500 --repeat 3 --seed 42 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		samples, repeat, seed, topK := cfg.Evaluate.NumSamples, cfg.Evaluate.Repeat, cfg.Evaluate.Seed, cfg.Evaluate.TopK
		if cmd.Flags().Changed("samples") {
			samples = evalSamples
		}
		if cmd.Flags().Changed("repeat") {
			repeat = evalRepeat
		}
		if cmd.Flags().Changed("seed") {
			seed = evalSeed
		}
		if cmd.Flags().Changed("top-k") {
			topK = evalTopK
		}

		return evaluate(cmd, samples, repeat, seed, topK, evalJSON)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().IntVar(&evalSamples, "samples", 100, "questions sampled per run")
	evaluateCmd.Flags().IntVar(&evalRepeat, "repeat", 5, "number of runs")
	evaluateCmd.Flags().Int64Var(&evalSeed, "seed", 0, "sampling seed (0 picks one and logs it)")
	evaluateCmd.Flags().IntVar(&evalTopK, "top-k", 5, "also report hits within the first k contexts (0 disables)")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "output as JSON")
}

func evaluate(cmd *cobra.Command, samples, repeat int, seed int64, topK int, asJSON bool) error {
	eng, err := openEngine(cmd, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	ranker, err := eng.index.Retriever(eng.embedder)
	if err != nil {
		return err
	}

	ev := usecase.NewEvaluator(ranker, eng.index.Dataset.Questions,
		usecase.WithSeed(seed),
		usecase.WithTopK(topK),
		usecase.WithEvalProgress(cmd.ErrOrStderr()),
		usecase.WithEvalLogger(logging.FromContext(cmd.Context())),
	)
	result, err := ev.Evaluate(samples, repeat)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printEvalResult(cmd.OutOrStdout(), result, samples)
	return nil
}

func printEvalResult(w io.Writer, r *domain.EvalResult, samples int) {
	fmt.Fprintf(w, "Evaluation: %d runs of %d questions (seed %d)\n\n", len(r.MeanRanks), samples, r.Seed)

	header := fmt.Sprintf("%-5s %10s %10s", "run", "mean_rank", "accuracy")
	if r.K > 0 {
		header += fmt.Sprintf(" %10s", fmt.Sprintf("hits@%d", r.K))
	}
	header += fmt.Sprintf(" %10s", "mrr")
	fmt.Fprintln(w, header)

	for i := range r.MeanRanks {
		line := fmt.Sprintf("%-5d %10.2f %9.1f%%", i+1, r.MeanRanks[i], r.Accuracies[i]*100)
		if r.K > 0 {
			line += fmt.Sprintf(" %9.1f%%", r.HitsAtK[i]*100)
		}
		line += fmt.Sprintf(" %10.3f", r.MRR[i])
		fmt.Fprintln(w, line)
	}

	line := fmt.Sprintf("%-5s %10.2f %9.1f%%", "mean", mean(r.MeanRanks), mean(r.Accuracies)*100)
	if r.K > 0 {
		line += fmt.Sprintf(" %9.1f%%", mean(r.HitsAtK)*100)
	}
	line += fmt.Sprintf(" %10.3f", mean(r.MRR))
	fmt.Fprintln(w, line)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
