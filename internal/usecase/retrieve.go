package usecase

import (
	"fmt"

	"ctxrank/internal/port"
)

// RetrieveUseCase answers a query with the best matching contexts.
type RetrieveUseCase struct {
	ranker port.Ranker
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(ranker port.Ranker) *RetrieveUseCase {
	return &RetrieveUseCase{ranker: ranker}
}

// Retrieve returns the n most similar contexts, best first. n larger than
// the corpus returns the whole corpus.
func (u *RetrieveUseCase) Retrieve(query string, n int) ([]ContextResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: number of contexts must be positive, got %d", ErrInvalidArgument, n)
	}

	ranking, err := u.ranker.Rank(query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	top := ranking.Top(n)

	results := make([]ContextResult, top.Len())
	for i := range results {
		results[i] = ContextResult{
			Rank:      i + 1,
			ContextID: top.Indices[i],
			Score:     top.Scores[i],
			Text:      top.Contexts[i],
		}
	}
	return results, nil
}

// ContextResult is a simplified result for CLI output.
type ContextResult struct {
	Rank      int     `json:"rank"`
	ContextID int     `json:"context_id"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}
