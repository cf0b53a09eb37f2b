package domain

import "time"

// Question is a labelled query pointing at the paragraph it was written from.
type Question struct {
	Text      string `json:"question"`
	ContextID int    `json:"context_id"`
}

// Dataset is a flattened SQuAD corpus. Contexts are identified by position.
// Questions is nil when the dataset was loaded without questions.
type Dataset struct {
	Name      string
	Contexts  []string
	Questions []Question
}

// Matrix holds one embedding row per context, in context order.
type Matrix [][]float32

// Dim returns the row width, or 0 for an empty matrix.
func (m Matrix) Dim() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Ranking is a full ordering of the corpus for one query.
// The three slices are aligned and have the corpus length.
type Ranking struct {
	Contexts []string  `json:"contexts"`
	Indices  []int     `json:"indices"`
	Scores   []float64 `json:"scores"`
}

// Len returns the number of ranked contexts.
func (r Ranking) Len() int {
	return len(r.Indices)
}

// Top returns the first n entries of the ranking.
func (r Ranking) Top(n int) Ranking {
	if n < 0 {
		n = 0
	}
	if n > len(r.Indices) {
		n = len(r.Indices)
	}
	return Ranking{
		Contexts: r.Contexts[:n],
		Indices:  r.Indices[:n],
		Scores:   r.Scores[:n],
	}
}

// RankOf returns the 0-based position of context index id, or -1.
func (r Ranking) RankOf(id int) int {
	for pos, idx := range r.Indices {
		if idx == id {
			return pos
		}
	}
	return -1
}

// EvalResult holds one entry per evaluation run.
type EvalResult struct {
	MeanRanks  []float64 `json:"mean_ranks"`
	Accuracies []float64 `json:"accuracies"`
	HitsAtK    []float64 `json:"hits_at_k,omitempty"`
	MRR        []float64 `json:"mrr"`
	K          int       `json:"k,omitempty"`
	Seed       int64     `json:"seed"`
}

// CacheEntry is a persisted corpus embedding matrix.
type CacheEntry struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	Model       string    `json:"model"`
	Rows        int       `json:"rows"`
	Dim         int       `json:"dim"`
	CreatedAt   time.Time `json:"created_at"`
	Matrix      Matrix    `json:"-"`
}
