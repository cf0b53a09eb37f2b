package usecase

import (
	"fmt"
	"log/slog"

	"ctxrank/config"
	"ctxrank/internal/adapter/retriever"
	"ctxrank/internal/adapter/squad"
	"ctxrank/internal/domain"
	"ctxrank/internal/port"
)

// IndexUseCase builds a queryable index from a dataset file.
type IndexUseCase struct {
	cache  *EmbeddingCache
	logger *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(cache *EmbeddingCache, logger *slog.Logger) *IndexUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexUseCase{
		cache:  cache,
		logger: logger,
	}
}

// Index is a loaded dataset together with its context embeddings.
// It is read-only once built.
type Index struct {
	Dataset *domain.Dataset
	Matrix  domain.Matrix
}

// Build loads the dataset at path and gets or computes its embeddings.
// Questions are only loaded when withQuestions is set.
func (u *IndexUseCase) Build(path string, withQuestions, recompute bool) (*Index, error) {
	var (
		ds  *domain.Dataset
		err error
	)
	if withQuestions {
		ds, err = squad.LoadData(path)
	} else {
		var contexts []string
		contexts, err = squad.LoadContexts(path)
		ds = &domain.Dataset{Name: config.CacheKey(path), Contexts: contexts}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	u.logger.Info("dataset loaded",
		"path", path,
		"contexts", len(ds.Contexts),
		"questions", len(ds.Questions))

	m, err := u.cache.GetOrCompute(ds.Contexts, config.CacheKey(path), recompute)
	if err != nil {
		return nil, err
	}

	return &Index{Dataset: ds, Matrix: m}, nil
}

// Retriever returns a ranker over the index. embedder must be the model the
// matrix was computed with.
func (ix *Index) Retriever(embedder port.Embedder) (*retriever.DenseRetriever, error) {
	return retriever.NewDenseRetriever(embedder, ix.Dataset.Contexts, ix.Matrix)
}
