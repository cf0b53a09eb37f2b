package embedding

import (
	"fmt"

	"ctxrank/config"
	"ctxrank/internal/port"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	opts := []Option{
		WithBatchSize(cfg.BatchSize),
		WithRateLimit(cfg.RequestsPerSecond),
		WithDimension(cfg.Dimension),
	}

	var (
		embedder port.Embedder
		err      error
	)
	switch cfg.Provider {
	case "openai":
		if cfg.BaseURL != "" {
			embedder, err = NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, opts...)
		} else {
			embedder, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, opts...)
		}
	case "deepseek":
		embedder, err = NewDeepSeekEmbedder(cfg.APIKeyEnv, cfg.Model, opts...)
	case "jina":
		embedder, err = NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, opts...)
	case "ollama":
		embedder, err = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, opts...)
	case "hashing":
		dim := cfg.Dimension
		if dim == 0 {
			dim = DefaultHashingDimension
		}
		embedder = NewHashingEmbedder(dim)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return embedder, nil
}
