package usecase

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"ctxrank/internal/adapter/store"
	"ctxrank/internal/domain"
	"ctxrank/internal/port"
)

const defaultBatchSize = 100

// EmbeddingCache returns corpus embeddings from the store when a matching
// entry exists and computes and persists them otherwise.
type EmbeddingCache struct {
	store     port.EmbeddingStore
	embedder  port.Embedder
	batchSize int
	progress  io.Writer
	logger    *slog.Logger
	now       func() time.Time
}

// CacheOption configures an EmbeddingCache.
type CacheOption func(*EmbeddingCache)

// WithBatchSize sets how many contexts are sent to the embedder per call.
func WithBatchSize(n int) CacheOption {
	return func(c *EmbeddingCache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithEncodeProgress draws a progress bar on w while encoding the corpus.
func WithEncodeProgress(w io.Writer) CacheOption {
	return func(c *EmbeddingCache) { c.progress = w }
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *EmbeddingCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewEmbeddingCache(st port.EmbeddingStore, embedder port.Embedder, opts ...CacheOption) *EmbeddingCache {
	c := &EmbeddingCache{
		store:     st,
		embedder:  embedder,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the embedding matrix for contexts, stored under key.
// A stored entry is reused only when recompute is false and its fingerprint
// and row count match the current corpus and model.
func (c *EmbeddingCache) GetOrCompute(contexts []string, key string, recompute bool) (domain.Matrix, error) {
	fp := Fingerprint(c.embedder.ModelName(), c.embedder.Dimension(), contexts)
	log := c.logger.With("key", key, "model", c.embedder.ModelName())

	if !recompute {
		entry, err := c.store.Load(key)
		switch {
		case err == nil && entry.Fingerprint == fp && len(entry.Matrix) == len(contexts):
			log.Debug("embedding cache hit", "rows", len(entry.Matrix), "dim", entry.Matrix.Dim())
			return entry.Matrix, nil
		case err == nil:
			log.Info("embedding cache entry is stale, recomputing",
				"stored_rows", len(entry.Matrix), "rows", len(contexts))
		case errors.Is(err, store.ErrNotFound):
			log.Info("embedding cache miss")
		default:
			log.Warn("embedding cache entry unreadable, recomputing", "err", err)
		}
	} else {
		log.Info("recomputing embeddings")
	}

	m, err := c.encode(contexts)
	if err != nil {
		return nil, err
	}

	entry := &domain.CacheEntry{
		Key:         key,
		Fingerprint: fp,
		Model:       c.embedder.ModelName(),
		Rows:        len(m),
		Dim:         m.Dim(),
		CreatedAt:   c.now().UTC(),
		Matrix:      m,
	}
	if err := c.store.Save(entry); err != nil {
		return nil, fmt.Errorf("failed to save embeddings: %w", err)
	}
	log.Info("embeddings cached", "rows", entry.Rows, "dim", entry.Dim)

	return m, nil
}

func (c *EmbeddingCache) encode(contexts []string) (domain.Matrix, error) {
	var bar *progressbar.ProgressBar
	if c.progress != nil && len(contexts) > 0 {
		bar = progressbar.NewOptions(len(contexts),
			progressbar.OptionSetWriter(c.progress),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Encoding contexts"),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(c.progress)
			}),
		)
	}

	m := make(domain.Matrix, 0, len(contexts))
	for i := 0; i < len(contexts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(contexts) {
			end = len(contexts)
		}

		vecs, err := c.embedder.Embed(contexts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to encode contexts %d-%d: %w", i, end-1, err)
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("embedder returned %d vectors for %d contexts", len(vecs), end-i)
		}
		m = append(m, vecs...)

		if bar != nil {
			bar.Add(end - i)
		}
	}

	if bar != nil {
		bar.Finish()
	}
	return m, nil
}

// Fingerprint identifies a corpus encoded by a particular model. Every field
// is length-prefixed so distinct corpora cannot collide by concatenation.
func Fingerprint(model string, dim int, contexts []string) string {
	h := sha256.New()
	var n [8]byte

	writeField := func(s string) {
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		io.WriteString(h, s)
	}

	writeField(model)
	binary.LittleEndian.PutUint64(n[:], uint64(dim))
	h.Write(n[:])
	binary.LittleEndian.PutUint64(n[:], uint64(len(contexts)))
	h.Write(n[:])
	for _, ctx := range contexts {
		writeField(ctx)
	}

	return hex.EncodeToString(h.Sum(nil))
}
