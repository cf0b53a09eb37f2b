package embedding

import (
	"fmt"
	"hash/fnv"
	"math"

	"ctxrank/internal/adapter/analyzer"
)

// DefaultHashingDimension matches the width of all-MiniLM-L6-v2.
const DefaultHashingDimension = 384

// HashingEmbedder is an offline encoder: unigram and bigram features are
// hashed into a fixed number of signed buckets and the result is
// L2-normalised. Same input, same vector.
type HashingEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashingEmbedder(dimension int) *HashingEmbedder {
	return &HashingEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(2),
	}
}

func (e *HashingEmbedder) Embed(texts []string) ([][]float32, error) {
	if e.dimension <= 0 {
		return nil, fmt.Errorf("hashing embedder: invalid dimension %d", e.dimension)
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.embedOne(text)
	}
	return embeddings, nil
}

func (e *HashingEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, feature := range e.tokenizer.Features(text) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		// top bit picks the sign so collisions tend to cancel out
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	l2normalize(vec)
	return vec
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) ModelName() string {
	return fmt.Sprintf("hashing-%d", e.dimension)
}

// l2normalize scales v to unit length in place. Zero vectors are left alone.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
