package extractor

import (
	"strings"
	"testing"
)

const sampleText = `Acme Corporation announced a new partnership today. The deal was
confirmed by Jane Smith, who called it "a turning point" for the
company. Interested parties can reach out to contact@acme.example or
visit https://acme.example/press for more details. Acme Corporation
expects the partnership to close within the next quarter.`

func TestExtractIsDeterministic(t *testing.T) {
	a := Extract(sampleText)
	b := Extract(sampleText)
	if a.EnrichedText() != b.EnrichedText() {
		t.Fatalf("Extract is not idempotent:\n%s\n---\n%s", a.EnrichedText(), b.EnrichedText())
	}
}

func TestExtractEmailEntity(t *testing.T) {
	r := Extract(sampleText)
	if !containsEntity(r.Entities, Email, "contact@acme.example") {
		t.Errorf("expected email entity, got %+v", r.Entities)
	}
}

func TestExtractURLEntity(t *testing.T) {
	r := Extract(sampleText)
	if !containsEntity(r.Entities, URL, "https://acme.example/press") {
		t.Errorf("expected url entity, got %+v", r.Entities)
	}
}

func TestExtractQuotedTermEntity(t *testing.T) {
	r := Extract(sampleText)
	if !containsEntity(r.Entities, QuotedTerm, "a turning point") {
		t.Errorf("expected quoted term entity, got %+v", r.Entities)
	}
}

func TestExtractCapitalizedNounPhraseEntity(t *testing.T) {
	r := Extract(sampleText)
	if !containsEntity(r.Entities, CapitalizedNounPhrase, "Acme Corporation") {
		t.Errorf("expected capitalized noun phrase entity, got %+v", r.Entities)
	}
	if !containsEntity(r.Entities, CapitalizedNounPhrase, "Jane Smith") {
		t.Errorf("expected capitalized noun phrase entity, got %+v", r.Entities)
	}
}

func TestExtractEntitiesDeduplicated(t *testing.T) {
	r := Extract(sampleText)
	seen := make(map[Entity]int)
	for _, e := range r.Entities {
		seen[e]++
	}
	for e, n := range seen {
		if n > 1 {
			t.Errorf("entity %+v appeared %d times, want 1", e, n)
		}
	}
}

func TestTopTopicsBounds(t *testing.T) {
	r := Extract(sampleText)
	if len(r.Topics) < 3 {
		t.Errorf("expected at least 3 topics, got %d", len(r.Topics))
	}
	if len(r.Topics) > 20 {
		t.Errorf("expected at most 20 topics, got %d", len(r.Topics))
	}
}

func TestTopTopicsExcludeStopWords(t *testing.T) {
	r := Extract(sampleText)
	for _, top := range r.Topics {
		if isStopWord(top.Term) {
			t.Errorf("topic %q should not be a stop word", top.Term)
		}
	}
}

func TestKeyPassagesCountBounded(t *testing.T) {
	r := Extract(sampleText)
	if len(r.Passages) > maxKeyPassages {
		t.Errorf("expected at most %d passages, got %d", maxKeyPassages, len(r.Passages))
	}
	if len(r.Passages) == 0 {
		t.Error("expected at least one passage for non-trivial text")
	}
}

func TestKeyPassagesPreserveDocumentOrder(t *testing.T) {
	sentences := splitSentences(sampleText)
	r := Extract(sampleText)

	lastIdx := -1
	for _, p := range r.Passages {
		idx := indexOf(sentences, p)
		if idx == -1 {
			t.Fatalf("passage %q not found among source sentences", p)
		}
		if idx <= lastIdx {
			t.Errorf("passages out of document order: %q at %d after %d", p, idx, lastIdx)
		}
		lastIdx = idx
	}
}

func TestEnrichedTextEmptyForEmptyInput(t *testing.T) {
	r := Extract("")
	if r.EnrichedText() != "" {
		t.Errorf("expected empty enriched text for empty input, got %q", r.EnrichedText())
	}
}

func TestEnrichedTextContainsSections(t *testing.T) {
	r := Extract(sampleText)
	enriched := r.EnrichedText()
	if !strings.Contains(enriched, "entities:") {
		t.Error("expected enriched text to contain an entities section")
	}
	if !strings.Contains(enriched, "topics:") {
		t.Error("expected enriched text to contain a topics section")
	}
	if !strings.Contains(enriched, "passage:") {
		t.Error("expected enriched text to contain at least one passage line")
	}
}

func containsEntity(entities []Entity, kind Kind, text string) bool {
	for _, e := range entities {
		if e.Kind == kind && e.Text == text {
			return true
		}
	}
	return false
}

func indexOf(sentences []string, s string) int {
	for i, sent := range sentences {
		if sent == s {
			return i
		}
	}
	return -1
}
