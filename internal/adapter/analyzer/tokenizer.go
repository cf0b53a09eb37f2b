package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase terms with stopword removal.
type Tokenizer struct {
	stopwords map[string]struct{}
	minLen    int
}

// NewTokenizer creates a new Tokenizer. Terms shorter than minLen runes are dropped.
func NewTokenizer(minLen int) *Tokenizer {
	if minLen < 1 {
		minLen = 1
	}
	return &Tokenizer{
		stopwords: defaultStopwords(),
		minLen:    minLen,
	}
}

// Tokenize splits text into terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < t.minLen {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Features returns the terms of text followed by its adjacent-term bigrams.
func (t *Tokenizer) Features(text string) []string {
	tokens := t.Tokenize(text)
	if len(tokens) < 2 {
		return tokens
	}
	features := make([]string, 0, 2*len(tokens)-1)
	features = append(features, tokens...)
	for i := 1; i < len(tokens); i++ {
		features = append(features, tokens[i-1]+" "+tokens[i])
	}
	return features
}

// splitWords splits text into runs of letters and digits.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"do", "does", "did", "been", "being", "would", "there",
		"could", "should", "may", "might", "which", "into", "than",
		"who", "whom", "what", "when", "where", "why", "how",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
