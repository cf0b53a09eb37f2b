package usecase

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ctxrank/internal/adapter/embedding"
	"ctxrank/internal/adapter/store"
	"ctxrank/internal/domain"
	"ctxrank/internal/logging"
	"ctxrank/internal/port"
)

// countingEmbedder maps each text to a 2-d vector derived from its length
// and records every call.
type countingEmbedder struct {
	model string
	calls int
	texts int
	err   error
}

func (e *countingEmbedder) Embed(texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int { return 2 }

func (e *countingEmbedder) ModelName() string {
	if e.model == "" {
		return "counting"
	}
	return e.model
}

var quiet = logging.Discard()

func newFileStore(t *testing.T) port.EmbeddingStore {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	st := newFileStore(t)
	contexts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	enc := &countingEmbedder{}
	cache := NewEmbeddingCache(st, enc, WithBatchSize(2), WithCacheLogger(quiet))

	first, err := cache.GetOrCompute(contexts, "dev.json", false)
	if err != nil {
		t.Fatal(err)
	}
	if enc.calls != 3 || enc.texts != 5 {
		t.Errorf("expected 3 batched calls over 5 texts, got %d calls / %d texts", enc.calls, enc.texts)
	}
	if len(first) != len(contexts) {
		t.Fatalf("expected %d rows, got %d", len(contexts), len(first))
	}

	// a fresh cache over the same store must not touch the encoder
	enc2 := &countingEmbedder{}
	second, err := NewEmbeddingCache(st, enc2).GetOrCompute(contexts, "dev.json", false)
	if err != nil {
		t.Fatal(err)
	}
	if enc2.calls != 0 {
		t.Errorf("expected cache hit without encoding, got %d calls", enc2.calls)
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cached matrix differs at [%d][%d]", i, j)
			}
		}
	}
}

func TestEmbeddingCache_RecomputeBypasses(t *testing.T) {
	st := store.NewMemoryStore()
	contexts := []string{"x", "yy"}

	enc := &countingEmbedder{}
	cache := NewEmbeddingCache(st, enc)
	if _, err := cache.GetOrCompute(contexts, "k", false); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetOrCompute(contexts, "k", true); err != nil {
		t.Fatal(err)
	}
	if enc.calls != 2 {
		t.Errorf("expected recompute to call the encoder again, got %d calls", enc.calls)
	}
}

func TestEmbeddingCache_StaleEntries(t *testing.T) {
	tests := []struct {
		name     string
		contexts []string
		model    string
	}{
		{"edited context", []string{"x", "changed"}, "counting"},
		{"extra context", []string{"x", "yy", "zzz"}, "counting"},
		{"other model", []string{"x", "yy"}, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			if _, err := NewEmbeddingCache(st, &countingEmbedder{}).GetOrCompute([]string{"x", "yy"}, "k", false); err != nil {
				t.Fatal(err)
			}

			enc := &countingEmbedder{model: tt.model}
			m, err := NewEmbeddingCache(st, enc).GetOrCompute(tt.contexts, "k", false)
			if err != nil {
				t.Fatal(err)
			}
			if enc.calls == 0 {
				t.Error("expected stale entry to be recomputed")
			}
			if len(m) != len(tt.contexts) {
				t.Errorf("expected %d rows, got %d", len(tt.contexts), len(m))
			}

			entry, err := st.Load("k")
			if err != nil {
				t.Fatal(err)
			}
			if entry.Fingerprint != Fingerprint(enc.ModelName(), 2, tt.contexts) {
				t.Error("expected stored entry to be replaced with the new fingerprint")
			}
		})
	}
}

func TestEmbeddingCache_CorruptEntryRecomputed(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "k.emb"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	enc := &countingEmbedder{}
	if _, err := NewEmbeddingCache(st, enc).GetOrCompute([]string{"x"}, "k", false); err != nil {
		t.Fatalf("corrupt entry should be recomputed, got %v", err)
	}
	if enc.calls != 1 {
		t.Errorf("expected one encoder call, got %d", enc.calls)
	}
}

func TestEmbeddingCache_ImplausibleShapeRecomputed(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	header := `{"key":"k","rows":1,"dim":4611686018427387904}`
	var buf bytes.Buffer
	buf.WriteString("CTXE")
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	buf.WriteString(header)
	if err := os.WriteFile(filepath.Join(dir, "k.emb"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	enc := &countingEmbedder{}
	m, err := NewEmbeddingCache(st, enc).GetOrCompute([]string{"x", "yy"}, "k", false)
	if err != nil {
		t.Fatalf("implausible entry should be recomputed, got %v", err)
	}
	if enc.calls != 1 || len(m) != 2 {
		t.Errorf("expected one encoder call and 2 rows, got %d calls / %d rows", enc.calls, len(m))
	}
}

func TestEmbeddingCache_EncoderError(t *testing.T) {
	st := newFileStore(t)
	boom := errors.New("model offline")

	_, err := NewEmbeddingCache(st, &countingEmbedder{err: boom}).GetOrCompute([]string{"x"}, "k", false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected encoder error, got %v", err)
	}
	if _, err := st.Load("k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("nothing should be persisted on failure, got %v", err)
	}
}

func TestEmbeddingCache_Progress(t *testing.T) {
	var buf bytes.Buffer
	cache := NewEmbeddingCache(newFileStore(t), &countingEmbedder{}, WithEncodeProgress(&buf))
	if _, err := cache.GetOrCompute([]string{"a", "b", "c"}, "k", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Encoding contexts") {
		t.Errorf("expected progress output, got %q", buf.String())
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("m", 2, []string{"ab", "c"})

	if base != Fingerprint("m", 2, []string{"ab", "c"}) {
		t.Error("fingerprint should be deterministic")
	}
	for name, other := range map[string]string{
		"boundary": Fingerprint("m", 2, []string{"a", "bc"}),
		"order":    Fingerprint("m", 2, []string{"c", "ab"}),
		"model":    Fingerprint("n", 2, []string{"ab", "c"}),
		"dim":      Fingerprint("m", 3, []string{"ab", "c"}),
		"count":    Fingerprint("m", 2, []string{"ab", "c", ""}),
	} {
		if other == base {
			t.Errorf("%s change should alter the fingerprint", name)
		}
	}
}

// offsetRanker puts each question's context at a fixed position.
type offsetRanker struct {
	n      int
	pos    int
	labels map[string]int
	calls  int
}

func (r *offsetRanker) Rank(query string) (domain.Ranking, error) {
	r.calls++
	target, ok := r.labels[query]
	if !ok {
		return domain.Ranking{}, fmt.Errorf("unknown query %q", query)
	}

	indices := make([]int, 0, r.n)
	for i := 0; i < r.n; i++ {
		if i != target {
			indices = append(indices, i)
		}
	}
	indices = append(indices[:r.pos], append([]int{target}, indices[r.pos:]...)...)

	scores := make([]float64, r.n)
	contexts := make([]string, r.n)
	for i, idx := range indices {
		scores[i] = 1 - float64(i)/float64(r.n)
		contexts[i] = fmt.Sprintf("context %d", idx)
	}
	return domain.Ranking{Contexts: contexts, Indices: indices, Scores: scores}, nil
}

func labelledQuestions(n, contexts int) ([]domain.Question, map[string]int) {
	qs := make([]domain.Question, n)
	labels := make(map[string]int, n)
	for i := range qs {
		qs[i] = domain.Question{Text: fmt.Sprintf("question %d", i), ContextID: i % contexts}
		labels[qs[i].Text] = qs[i].ContextID
	}
	return qs, labels
}

func TestEvaluator_FixedRank(t *testing.T) {
	qs, labels := labelledQuestions(20, 6)
	ranker := &offsetRanker{n: 6, pos: 2, labels: labels}

	ev := NewEvaluator(ranker, qs, WithSeed(7), WithTopK(3), WithEvalLogger(quiet))
	res, err := ev.Evaluate(10, 3)
	if err != nil {
		t.Fatal(err)
	}

	if ranker.calls != 30 {
		t.Errorf("expected 30 ranker calls, got %d", ranker.calls)
	}
	if len(res.MeanRanks) != 3 || len(res.Accuracies) != 3 || len(res.MRR) != 3 || len(res.HitsAtK) != 3 {
		t.Fatalf("expected one entry per run, got %+v", res)
	}
	for i := 0; i < 3; i++ {
		if res.MeanRanks[i] != 2 {
			t.Errorf("run %d: mean rank = %v, want 2", i, res.MeanRanks[i])
		}
		if res.Accuracies[i] != 0 {
			t.Errorf("run %d: accuracy = %v, want 0", i, res.Accuracies[i])
		}
		if res.HitsAtK[i] != 1 {
			t.Errorf("run %d: hits@3 = %v, want 1", i, res.HitsAtK[i])
		}
		if d := res.MRR[i] - 1.0/3; d > 1e-9 || d < -1e-9 {
			t.Errorf("run %d: MRR = %v, want 1/3", i, res.MRR[i])
		}
	}
	if res.Seed != 7 || res.K != 3 {
		t.Errorf("expected seed 7 and k 3, got %d / %d", res.Seed, res.K)
	}
}

func TestEvaluator_PerfectRanker(t *testing.T) {
	qs, labels := labelledQuestions(8, 4)
	res, err := NewEvaluator(&offsetRanker{n: 4, pos: 0, labels: labels}, qs, WithSeed(1)).Evaluate(8, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range res.Accuracies {
		if res.Accuracies[i] != 1 || res.MeanRanks[i] != 0 || res.MRR[i] != 1 {
			t.Errorf("run %d: expected perfect scores, got acc=%v rank=%v mrr=%v",
				i, res.Accuracies[i], res.MeanRanks[i], res.MRR[i])
		}
	}
	if res.HitsAtK != nil || res.K != 0 {
		t.Error("hits@k should be omitted without a top-k setting")
	}
}

func TestEvaluator_Preconditions(t *testing.T) {
	qs, labels := labelledQuestions(5, 2)
	ranker := &offsetRanker{n: 2, labels: labels}

	tests := []struct {
		name      string
		questions []domain.Question
		samples   int
		repeat    int
		want      error
	}{
		{"no questions", nil, 1, 1, ErrMissingQuestions},
		{"too many samples", qs, 6, 1, ErrSampleTooLarge},
		{"empty question set", []domain.Question{}, 1, 1, ErrSampleTooLarge},
		{"zero samples", qs, 0, 1, ErrInvalidArgument},
		{"zero repeat", qs, 1, 0, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(ranker, tt.questions, WithSeed(1)).Evaluate(tt.samples, tt.repeat)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if ranker.calls != 0 {
		t.Errorf("ranker should not be called when preconditions fail, got %d calls", ranker.calls)
	}
}

func TestEvaluator_CorruptRanking(t *testing.T) {
	qs := []domain.Question{{Text: "q", ContextID: 9}}
	ranker := &offsetRanker{n: 3, labels: map[string]int{"q": 0}}

	if _, err := NewEvaluator(ranker, qs, WithSeed(1)).Evaluate(1, 1); err == nil {
		t.Error("expected error when the labelled context is absent from the ranking")
	}
}

// recordingRanker returns the same ranking for every query and remembers
// what it was asked.
type recordingRanker struct {
	queries []string
}

func (r *recordingRanker) Rank(query string) (domain.Ranking, error) {
	r.queries = append(r.queries, query)
	return domain.Ranking{Contexts: []string{"c"}, Indices: []int{0}, Scores: []float64{1}}, nil
}

func TestEvaluator_SamplingWithoutReplacement(t *testing.T) {
	qs := make([]domain.Question, 12)
	for i := range qs {
		qs[i] = domain.Question{Text: fmt.Sprintf("q%d", i)}
	}

	r := &recordingRanker{}
	if _, err := NewEvaluator(r, qs, WithSeed(99)).Evaluate(12, 1); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, q := range r.queries {
		if seen[q] {
			t.Fatalf("question %s sampled twice in one run", q)
		}
		seen[q] = true
	}
	if len(seen) != 12 {
		t.Errorf("expected all 12 questions, got %d", len(seen))
	}
}

func TestEvaluator_SeedReproducible(t *testing.T) {
	qs := make([]domain.Question, 50)
	for i := range qs {
		qs[i] = domain.Question{Text: fmt.Sprintf("q%d", i)}
	}

	a, b := &recordingRanker{}, &recordingRanker{}
	if _, err := NewEvaluator(a, qs, WithSeed(42)).Evaluate(10, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEvaluator(b, qs, WithSeed(42)).Evaluate(10, 3); err != nil {
		t.Fatal(err)
	}

	if strings.Join(a.queries, ",") != strings.Join(b.queries, ",") {
		t.Error("same seed should draw the same samples")
	}
}

func TestEvaluator_ZeroSeedIsRandomised(t *testing.T) {
	ev := NewEvaluator(&recordingRanker{}, nil)
	if ev.Seed() == 0 {
		t.Error("expected a clock-derived seed")
	}
}

func TestRetrieveUseCase(t *testing.T) {
	_, labels := labelledQuestions(1, 5)
	uc := NewRetrieveUseCase(&offsetRanker{n: 5, pos: 1, labels: labels})

	results, err := uc.Retrieve("question 0", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].ContextID != 0 || results[1].Rank != 2 {
		t.Errorf("expected context 0 at rank 2, got %+v", results[1])
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order: %+v", results)
		}
	}

	all, err := uc.Retrieve("question 0", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("expected n to be clamped to corpus size, got %d", len(all))
	}

	if _, err := uc.Retrieve("question 0", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestIndexUseCase_BuildAndQuery(t *testing.T) {
	path := filepath.Join("..", "adapter", "squad", "testdata", "tiny.json")
	enc := embedding.NewHashingEmbedder(256)

	st := newFileStore(t)
	uc := NewIndexUseCase(NewEmbeddingCache(st, enc, WithCacheLogger(quiet)), quiet)

	ix, err := uc.Build(path, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ix.Dataset.Contexts) != 3 || len(ix.Matrix) != 3 {
		t.Fatalf("expected 3 contexts and rows, got %d / %d", len(ix.Dataset.Contexts), len(ix.Matrix))
	}
	if len(ix.Dataset.Questions) == 0 {
		t.Fatal("expected questions to be loaded")
	}
	if _, err := st.Load("tiny.json"); err != nil {
		t.Errorf("expected cache entry keyed by file name: %v", err)
	}

	r, err := ix.Retriever(enc)
	if err != nil {
		t.Fatal(err)
	}
	for id, text := range ix.Dataset.Contexts {
		ranking, err := r.Rank(text)
		if err != nil {
			t.Fatal(err)
		}
		if ranking.Indices[0] != id {
			t.Errorf("context %d should rank first for its own text, got %v", id, ranking.Indices)
		}
	}

	contextsOnly, err := uc.Build(path, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if contextsOnly.Dataset.Questions != nil {
		t.Error("expected nil questions when built without them")
	}
	_, err = NewEvaluator(r, contextsOnly.Dataset.Questions).Evaluate(1, 1)
	if !errors.Is(err, ErrMissingQuestions) {
		t.Errorf("expected ErrMissingQuestions, got %v", err)
	}
}

func TestIndexUseCase_MissingDataset(t *testing.T) {
	uc := NewIndexUseCase(NewEmbeddingCache(newFileStore(t), &countingEmbedder{}, WithCacheLogger(quiet)), quiet)
	if _, err := uc.Build(filepath.Join(t.TempDir(), "nope.json"), false, false); err == nil {
		t.Error("expected error for missing dataset")
	}
}
