package retriever

// ReciprocalRank converts a 0-based rank into 1/(rank+1). A negative rank
// means the item was not retrieved and scores 0.
func ReciprocalRank(rank int) float64 {
	if rank < 0 {
		return 0
	}
	return 1.0 / float64(rank+1)
}

// HitAtK reports whether a 0-based rank falls within the first k results.
func HitAtK(rank, k int) bool {
	return rank >= 0 && rank < k
}
