package retriever

import (
	"fmt"
	"math"
	"sort"

	"ctxrank/internal/domain"
	"ctxrank/internal/port"
)

// DenseRetriever ranks a fixed corpus by cosine similarity to the query
// embedding. It holds no mutable state, so one instance serves any number
// of queries.
type DenseRetriever struct {
	embedder port.Embedder
	contexts []string
	matrix   domain.Matrix
}

func NewDenseRetriever(embedder port.Embedder, contexts []string, matrix domain.Matrix) (*DenseRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("dense retrieval not available: no embedder configured")
	}
	if len(contexts) != len(matrix) {
		return nil, fmt.Errorf("corpus has %d contexts but %d embeddings", len(contexts), len(matrix))
	}
	return &DenseRetriever{
		embedder: embedder,
		contexts: contexts,
		matrix:   matrix,
	}, nil
}

// Rank returns every context ordered by descending similarity to query.
func (r *DenseRetriever) Rank(query string) (domain.Ranking, error) {
	embeddings, err := r.embedder.Embed([]string{query})
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return domain.Ranking{}, fmt.Errorf("embedding returned empty result")
	}

	queryVec := embeddings[0]
	if dim := r.matrix.Dim(); dim != 0 && len(queryVec) != dim {
		return domain.Ranking{}, fmt.Errorf("query dimension mismatch: expected %d, got %d", dim, len(queryVec))
	}

	indices, scores := Rank(queryVec, r.matrix)

	ranked := make([]string, len(indices))
	for pos, idx := range indices {
		ranked[pos] = r.contexts[idx]
	}

	return domain.Ranking{
		Contexts: ranked,
		Indices:  indices,
		Scores:   scores,
	}, nil
}

// Rank scores every row of m against query and returns row indices and
// scores in descending score order. Equal scores keep ascending index order.
func Rank(query []float32, m domain.Matrix) ([]int, []float64) {
	all := make([]float64, len(m))
	indices := make([]int, len(m))
	for i, row := range m {
		all[i] = CosineSimilarity(query, row)
		indices[i] = i
	}

	sort.SliceStable(indices, func(a, b int) bool {
		return all[indices[a]] > all[indices[b]]
	})

	scores := make([]float64, len(indices))
	for pos, idx := range indices {
		scores[pos] = all[idx]
	}
	return indices, scores
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched lengths and zero-norm vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
