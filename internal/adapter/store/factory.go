package store

import (
	"fmt"

	"ctxrank/config"
	"ctxrank/internal/port"
)

// Open returns the embedding store selected by cfg.Backend.
func Open(cfg config.CacheConfig) (port.EmbeddingStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "bolt":
		return NewBoltStore(cfg.Dir)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
