package port

import "ctxrank/internal/domain"

// Ranker orders the whole corpus by relevance to a query.
type Ranker interface {
	Rank(query string) (domain.Ranking, error)
}
