package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctxrank/internal/adapter/cache"
	"ctxrank/internal/adapter/embedding"
	"ctxrank/internal/adapter/store"
	"ctxrank/internal/logging"
	"ctxrank/internal/port"
	"ctxrank/internal/usecase"
)

// engine is a built index plus the resources that must be released after
// use.
type engine struct {
	index    *usecase.Index
	embedder port.Embedder
	store    port.EmbeddingStore
}

func (e *engine) Close() error {
	return e.store.Close()
}

// openEngine builds the embedder and cache from the loaded config and gets
// or computes the embeddings of the configured dataset.
func openEngine(cmd *cobra.Command, withQuestions bool) (*engine, error) {
	cfg := GetConfig()
	logger := logging.FromContext(cmd.Context())

	base, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	embedder := cache.NewCachedEmbedder(base, cache.NewQueryCache(cfg.Embedding.QueryCacheSize))

	st, err := store.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	embCache := usecase.NewEmbeddingCache(st, embedder,
		usecase.WithBatchSize(cfg.Embedding.BatchSize),
		usecase.WithEncodeProgress(cmd.ErrOrStderr()),
		usecase.WithCacheLogger(logger),
	)

	ix, err := usecase.NewIndexUseCase(embCache, logger).Build(cfg.Dataset.Path, withQuestions, force)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &engine{index: ix, embedder: embedder, store: st}, nil
}
