package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"ctxrank/internal/port"
)

// QueryCache is a bounded LRU of query embeddings.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	order   []string
	maxSize int
	hits    int
	misses  int
}

func NewQueryCache(maxSize int) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &QueryCache{
		entries: make(map[string][]float32),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

func (c *QueryCache) Get(model, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, text)
	vec, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil, false
	}

	c.hits++
	c.moveToEnd(key)
	return vec, true
}

func (c *QueryCache) Put(model, text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, text)

	if _, exists := c.entries[key]; exists {
		c.entries[key] = vec
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = vec
	c.order = append(c.order, key)
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts since creation.
func (c *QueryCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedEmbedder memoises single-text calls, which is how queries are
// encoded. Batch calls (corpus ingestion) pass straight through.
type CachedEmbedder struct {
	port.Embedder
	cache *QueryCache
}

func NewCachedEmbedder(embedder port.Embedder, cache *QueryCache) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: embedder,
		cache:    cache,
	}
}

func (e *CachedEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return e.Embedder.Embed(texts)
	}

	model := e.Embedder.ModelName()
	if vec, hit := e.cache.Get(model, texts[0]); hit {
		return [][]float32{vec}, nil
	}

	embeddings, err := e.Embedder.Embed(texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 1 {
		e.cache.Put(model, texts[0], embeddings[0])
	}

	return embeddings, nil
}
