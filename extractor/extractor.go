// Package extractor derives entities, topics, and key passages from a
// chunk's text so the retriever can boost entity matches.
package extractor

import (
	"sort"
	"strings"
)

// Result holds everything the extractor derived from one chunk of text.
type Result struct {
	Entities []Entity
	Topics   []Topic
	Passages []string
}

// Extract runs entity, topic, and key-passage detection over text.
// Calling Extract twice on identical text always yields an identical
// Result — every sub-detector sorts its output deterministically.
func Extract(text string) Result {
	sentences := splitSentences(text)
	entities := extractEntities(text, sentences)
	topics := topTopics(text)
	passages := keyPassages(sentences, entities, topics)

	return Result{
		Entities: entities,
		Topics:   topics,
		Passages: passages,
	}
}

// EnrichedText serializes a Result into the flat, line-oriented form
// stored alongside a chunk's raw text (store.Chunk.Enriched). The
// format is deterministic so that re-running Extract and re-serializing
// is idempotent.
func (r Result) EnrichedText() string {
	var b strings.Builder

	if len(r.Entities) > 0 {
		texts := make([]string, len(r.Entities))
		for i, e := range r.Entities {
			texts[i] = string(e.Kind) + ":" + e.Text
		}
		b.WriteString("entities: ")
		b.WriteString(strings.Join(texts, " | "))
		b.WriteString("\n")
	}

	if len(r.Topics) > 0 {
		terms := make([]string, len(r.Topics))
		for i, t := range r.Topics {
			terms[i] = t.Term
		}
		b.WriteString("topics: ")
		b.WriteString(strings.Join(terms, " "))
		b.WriteString("\n")
	}

	for _, p := range r.Passages {
		b.WriteString("passage: ")
		b.WriteString(p)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// EntityTexts returns the entity surface forms in the same sorted order
// used internally, for callers that only need boost terms and not kinds.
func (r Result) EntityTexts() []string {
	texts := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		texts[i] = e.Text
	}
	sort.Strings(texts)
	return texts
}
