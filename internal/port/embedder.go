package port

import "ctxrank/internal/domain"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbeddingStore persists corpus embedding matrices by cache key.
type EmbeddingStore interface {
	// Load returns the entry stored under key, or store.ErrNotFound.
	Load(key string) (*domain.CacheEntry, error)

	// Save writes the entry, replacing any previous one with the same key.
	Save(entry *domain.CacheEntry) error

	// List returns entry headers without their matrices.
	List() ([]domain.CacheEntry, error)

	// Delete removes the entry for key. Missing keys are not an error.
	Delete(key string) error

	Close() error
}
