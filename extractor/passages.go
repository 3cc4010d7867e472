package extractor

import (
	"sort"
	"strings"

	"github.com/kljensen/snowball"
)

const maxKeyPassages = 3

// keyPassages scores each sentence by (a) how many extracted entities
// it contains, (b) overlap with the chunk's top topics, and (c) a
// positional prior favoring the first and last 20% of the chunk, then
// returns up to maxKeyPassages sentences, restored to document order.
// Selection ties are broken by earliest position.
func keyPassages(sentences []string, entities []Entity, topics []Topic) []string {
	n := len(sentences)
	if n == 0 {
		return nil
	}

	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t.Term] = true
	}

	type scored struct {
		idx   int
		score float64
	}
	results := make([]scored, n)
	for i, sent := range sentences {
		lower := strings.ToLower(sent)
		var score float64

		for _, e := range entities {
			if strings.Contains(lower, strings.ToLower(e.Text)) {
				score++
			}
		}

		for _, w := range tokenizeWords(sent) {
			stemmed, err := snowball.Stem(w, "english", true)
			if err == nil && topicSet[stemmed] {
				score += 0.5
			}
		}

		pos := float64(i) / float64(n)
		if pos < 0.2 || pos >= 0.8 {
			score += 0.25
		}

		results[i] = scored{idx: i, score: score}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].score != results[b].score {
			return results[a].score > results[b].score
		}
		return results[a].idx < results[b].idx
	})

	k := maxKeyPassages
	if len(results) < k {
		k = len(results)
	}
	top := results[:k]
	sort.Slice(top, func(a, b int) bool { return top[a].idx < top[b].idx })

	out := make([]string, len(top))
	for i, s := range top {
		out[i] = sentences[s.idx]
	}
	return out
}
