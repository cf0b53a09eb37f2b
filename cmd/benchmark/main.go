package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ctxrank/config"
	"ctxrank/internal/adapter/embedding"
	"ctxrank/internal/adapter/store"
	"ctxrank/internal/logging"
	"ctxrank/internal/usecase"
)

func main() {
	configDir := flag.String("config-dir", ".", "Directory holding ctxrank.yaml")
	dataset := flag.String("d", "", "Dataset path (default from config)")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -d squad1.1/dev-v1.1.json -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Embedding infrastructure (model, cache, dimension)")
		fmt.Println("  2. Query latency (embedding + full corpus ranking)")
		fmt.Println("  3. Similarity of the top matches")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *dataset != "" {
		cfg.Dataset.Path = *dataset
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Cache)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	logger := logging.New(os.Stderr, "warn", "text")
	cache := usecase.NewEmbeddingCache(st, embedder,
		usecase.WithBatchSize(cfg.Embedding.BatchSize),
		usecase.WithEncodeProgress(os.Stderr),
		usecase.WithCacheLogger(logger),
	)

	buildStart := time.Now()
	ix, err := usecase.NewIndexUseCase(cache, logger).Build(cfg.Dataset.Path, false, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building index: %v\n", err)
		os.Exit(1)
	}
	buildTime := time.Since(buildStart)

	fmt.Println("DENSE RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Contexts indexed: %d\n", len(ix.Matrix))
	fmt.Printf("Model: %s (%s)\n", embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", ix.Matrix.Dim())
	fmt.Printf("Index ready in: %s\n", buildTime.Round(time.Millisecond))
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	r, err := ix.Retriever(embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retriever error: %v\n", err)
		os.Exit(1)
	}

	rankStart := time.Now()
	ranking, err := r.Rank(*query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	rankTime := time.Since(rankStart)

	top := ranking.Top(*topK)
	if top.Len() == 0 {
		fmt.Println("Corpus is empty.")
		return
	}
	fmt.Printf("Top %d matches (ranked in %s):\n\n", top.Len(), rankTime.Round(time.Microsecond))

	totalScore := 0.0
	for i := range top.Indices {
		preview := strings.ReplaceAll(truncate(top.Contexts[i], 150), "\n", " ")

		similarity := top.Scores[i]
		totalScore += similarity

		fmt.Printf("%d. [%s %.3f] context #%d\n", i+1, rating(similarity), similarity, top.Indices[i])
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(top.Len())
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", top.Scores[0])

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - matches are close to the query")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - consider a stronger embedding model")
	}
}

func rating(similarity float64) string {
	switch {
	case similarity > 0.7:
		return "HIGH"
	case similarity > 0.5:
		return "GOOD"
	case similarity > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
