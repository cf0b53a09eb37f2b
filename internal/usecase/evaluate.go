package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"

	"ctxrank/internal/adapter/retriever"
	"ctxrank/internal/domain"
	"ctxrank/internal/port"
)

var (
	// ErrMissingQuestions is returned when evaluating an index built
	// without questions.
	ErrMissingQuestions = errors.New("missing labeled questions")

	// ErrSampleTooLarge is returned when more samples are requested than
	// there are questions.
	ErrSampleTooLarge = errors.New("sample larger than question set")

	ErrInvalidArgument = errors.New("invalid argument")
)

// Evaluator measures how well a ranker finds the source paragraph of
// labelled questions.
type Evaluator struct {
	ranker    port.Ranker
	questions []domain.Question
	topK      int
	seed      int64
	rng       *rand.Rand
	progress  io.Writer
	logger    *slog.Logger
}

type EvalOption func(*Evaluator)

// WithSeed fixes the sampling seed. Zero picks one from the clock.
func WithSeed(seed int64) EvalOption {
	return func(e *Evaluator) { e.seed = seed }
}

// WithTopK also reports the fraction of questions whose context lands in
// the first k positions.
func WithTopK(k int) EvalOption {
	return func(e *Evaluator) { e.topK = k }
}

func WithEvalProgress(w io.Writer) EvalOption {
	return func(e *Evaluator) { e.progress = w }
}

func WithEvalLogger(logger *slog.Logger) EvalOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator creates an evaluator. questions may be nil, in which case
// Evaluate fails with ErrMissingQuestions.
func NewEvaluator(ranker port.Ranker, questions []domain.Question, opts ...EvalOption) *Evaluator {
	e := &Evaluator{
		ranker:    ranker,
		questions: questions,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.seed == 0 {
		e.seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(e.seed))
	return e
}

// Seed returns the seed the sampler was initialised with.
func (e *Evaluator) Seed() int64 {
	return e.seed
}

// Evaluate runs repeat independent evaluations, each over numSamples
// questions drawn without replacement. Result slices have one entry per run.
func (e *Evaluator) Evaluate(numSamples, repeat int) (*domain.EvalResult, error) {
	if e.questions == nil {
		return nil, ErrMissingQuestions
	}
	if numSamples <= 0 || repeat <= 0 {
		return nil, fmt.Errorf("%w: num_samples=%d repeat=%d", ErrInvalidArgument, numSamples, repeat)
	}
	if numSamples > len(e.questions) {
		return nil, fmt.Errorf("%w: %d > %d", ErrSampleTooLarge, numSamples, len(e.questions))
	}

	e.logger.Info("evaluation started",
		"seed", e.seed,
		"num_samples", numSamples,
		"repeat", repeat,
		"questions", len(e.questions))

	var bar *progressbar.ProgressBar
	if e.progress != nil {
		bar = progressbar.NewOptions(numSamples*repeat,
			progressbar.OptionSetWriter(e.progress),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Evaluating"),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(e.progress)
			}),
		)
	}

	result := &domain.EvalResult{
		MeanRanks:  make([]float64, 0, repeat),
		Accuracies: make([]float64, 0, repeat),
		MRR:        make([]float64, 0, repeat),
		Seed:       e.seed,
	}
	if e.topK > 0 {
		result.K = e.topK
		result.HitsAtK = make([]float64, 0, repeat)
	}

	for run := 0; run < repeat; run++ {
		var rankSum, rrSum float64
		var correct, hits int

		for _, qi := range e.sample(numSamples) {
			q := e.questions[qi]
			ranking, err := e.ranker.Rank(q.Text)
			if err != nil {
				return nil, fmt.Errorf("failed to rank question %d: %w", qi, err)
			}
			rank := ranking.RankOf(q.ContextID)
			if rank < 0 {
				return nil, fmt.Errorf("context %d of question %d missing from ranking", q.ContextID, qi)
			}

			rankSum += float64(rank)
			rrSum += retriever.ReciprocalRank(rank)
			if rank == 0 {
				correct++
			}
			if e.topK > 0 && retriever.HitAtK(rank, e.topK) {
				hits++
			}
			if bar != nil {
				bar.Add(1)
			}
		}

		n := float64(numSamples)
		result.MeanRanks = append(result.MeanRanks, rankSum/n)
		result.Accuracies = append(result.Accuracies, float64(correct)/n)
		result.MRR = append(result.MRR, rrSum/n)
		if e.topK > 0 {
			result.HitsAtK = append(result.HitsAtK, float64(hits)/n)
		}

		e.logger.Debug("evaluation run finished",
			"run", run,
			"mean_rank", result.MeanRanks[run],
			"accuracy", result.Accuracies[run])
	}

	if bar != nil {
		bar.Finish()
	}
	return result, nil
}

// sample draws k distinct question indices with a partial Fisher-Yates
// shuffle.
func (e *Evaluator) sample(k int) []int {
	perm := make([]int, len(e.questions))
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + e.rng.Intn(len(perm)-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}
