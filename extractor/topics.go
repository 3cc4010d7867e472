package extractor

import (
	"sort"
	"unicode"

	"github.com/kljensen/snowball"
)

// Topic is a Porter-stemmed term with its term-frequency score.
type Topic struct {
	Term  string
	Score float64
}

// topTopics tokenizes text, discards stop words, Porter-stems the
// remainder, scores by term frequency, and returns the top-K stemmed
// terms sorted by descending score (ties broken by term so the result
// is stable across runs). K is roughly one per 100 tokens, floored at 3
// and capped at 20.
func topTopics(text string) []Topic {
	words := tokenizeWords(text)

	counts := make(map[string]int)
	for _, w := range words {
		if isStopWord(w) || !hasLetter(w) {
			continue
		}
		stemmed, err := snowball.Stem(w, "english", true)
		if err != nil || stemmed == "" {
			continue
		}
		counts[stemmed]++
	}

	topics := make([]Topic, 0, len(counts))
	for term, count := range counts {
		topics = append(topics, Topic{Term: term, Score: float64(count)})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Score != topics[j].Score {
			return topics[i].Score > topics[j].Score
		}
		return topics[i].Term < topics[j].Term
	})

	k := len(words) / 100
	if k < 3 {
		k = 3
	}
	if k > 20 {
		k = 20
	}
	if k > len(topics) {
		k = len(topics)
	}
	return topics[:k]
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
