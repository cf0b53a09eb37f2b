package embedding

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const defaultBatchSize = 100

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	// requested is sent as the request's dimensions field; 0 leaves the
	// model default in place.
	requested int
	batchSize int
	limiter   *rate.Limiter
}

// Option configures an OpenAIEmbedder.
type Option func(*OpenAIEmbedder)

// WithBatchSize sets how many texts go into one request.
func WithBatchSize(n int) Option {
	return func(e *OpenAIEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(e *OpenAIEmbedder) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithDimension asks the endpoint for dim-wide vectors instead of the
// model's native width.
func WithDimension(dim int) Option {
	return func(e *OpenAIEmbedder) {
		if dim > 0 {
			e.dimension = dim
			e.requested = dim
		}
	}
}

func NewOpenAIEmbedder(apiKeyEnv, model string, opts ...Option) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.openai.com/v1", opts...)
}

func NewDeepSeekEmbedder(apiKeyEnv, model string, opts ...Option) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.deepseek.com/v1", opts...)
}

func NewJinaEmbedder(apiKeyEnv, model string, opts ...Option) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.jina.ai/v1", opts...)
}

// NewOllamaEmbedder uses Ollama's OpenAI-compatible endpoint; no key is needed.
func NewOllamaEmbedder(model, baseURL string, opts ...Option) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return newEmbedder("ollama", model, baseURL, opts...), nil
}

func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string, opts ...Option) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return newEmbedder(apiKey, model, baseURL, opts...), nil
}

func newEmbedder(apiKey, model, baseURL string, opts ...Option) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	e := &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: modelDimension(model),
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3", "mxbai-embed-large":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	case "nomic-embed-text":
		return 768
	case "all-minilm", "all-minilm:l6-v2":
		return 384
	default:
		return 1536
	}
}

// Embed encodes texts in order, splitting them into batches.
func (e *OpenAIEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, err
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(texts []string) ([][]float32, error) {
	ctx := context.Background()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.requested,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing vector for input %d", i)
		}
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.dimension, len(v))
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
