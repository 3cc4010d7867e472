// Package chunker splits raw document text into a two-level hierarchy:
// L0 sections (heading or blank-line-run containers) and L1 paragraph
// chunks sized for retrieval, with a fixed character overlap between
// adjacent L1 chunks.
package chunker

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"mindsage/store"
)

// Default budget: 512-character chunks, 100-character overlap between
// adjacent L1 chunks.
const (
	DefaultMaxChars = 512
	DefaultOverlap  = 100
)

// Config controls the chunking behaviour.
type Config struct {
	MaxChars int // Maximum characters per L1 chunk.
	Overlap  int // Character overlap between consecutive L1 chunks.
}

// Chunker converts raw text into store-ready sections and paragraphs.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration. Zero-value fields
// are replaced with spec defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxChars == 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = DefaultOverlap
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits text into L0 sections and, within each, L1 paragraph
// chunks. Deterministic: the same input always yields the same output,
// including ordinals (assigned by the caller from slice order — see
// store.AddChunks).
func (c *Chunker) Chunk(text string) []store.Section {
	text = norm.NFC.String(text)
	raw := splitSections(text)

	sections := make([]store.Section, 0, len(raw))
	for _, rs := range raw {
		sections = append(sections, store.Section{
			Heading:    rs.heading,
			Text:       sectionContainerText(rs),
			Paragraphs: c.splitParagraphs(rs.body),
		})
	}
	return sections
}

// ---------------------------------------------------------------------------
// L0: section splitting
// ---------------------------------------------------------------------------

// rawSection is an L0 candidate before paragraph splitting: an optional
// heading line plus the body text that follows it.
type rawSection struct {
	heading string
	body    string
}

// splitSections splits on three or more consecutive newlines (two or more
// blank lines), one of the two section-boundary triggers: splitting on
// three-or-more consecutive newlines, or heading markers, whichever
// yields earlier boundaries. Running the blank-line split first and the
// heading split second over each
// resulting block produces the same boundary set as evaluating both in
// parallel and taking the earliest, since both are just sets of cut
// points; only their union matters for the final partition.
func splitSections(text string) []rawSection {
	var out []rawSection
	for _, block := range splitOnBlankLineRuns(text) {
		out = append(out, splitOnHeadings(block)...)
	}
	if len(out) == 0 {
		return []rawSection{{body: text}}
	}
	return out
}

func splitOnBlankLineRuns(text string) []string {
	var blocks []string
	var cur strings.Builder
	newlineRun := 0

	for _, r := range text {
		if r == '\n' {
			newlineRun++
		} else {
			if newlineRun >= 3 {
				blocks = append(blocks, cur.String())
				cur.Reset()
			} else {
				cur.WriteString(strings.Repeat("\n", newlineRun))
			}
			newlineRun = 0
			cur.WriteRune(r)
		}
	}
	if newlineRun >= 3 {
		blocks = append(blocks, cur.String())
	} else {
		cur.WriteString(strings.Repeat("\n", newlineRun))
		blocks = append(blocks, cur.String())
	}

	trimmed := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			trimmed = append(trimmed, b)
		}
	}
	if len(trimmed) == 0 {
		return []string{text}
	}
	return trimmed
}

// splitOnHeadings scans a block line by line and starts a new section
// whenever a heading line (ATX `#`-style or setext underline) is found.
// Text preceding the first heading becomes a headingless section.
func splitOnHeadings(block string) []rawSection {
	lines := strings.Split(block, "\n")

	var out []rawSection
	var heading string
	var body strings.Builder
	started := false

	flush := func() {
		if !started {
			return
		}
		out = append(out, rawSection{heading: heading, body: strings.TrimSpace(body.String())})
		body.Reset()
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if h, consumed := setextHeading(lines, i); consumed > 0 {
			flush()
			heading = h
			started = true
			i += consumed
			continue
		}

		if IsHeading(line) {
			flush()
			heading = strings.TrimSpace(stripHeadingMarker(line))
			started = true
			i++
			continue
		}

		if !started {
			started = true
			heading = ""
		}
		body.WriteString(line)
		body.WriteString("\n")
		i++
	}
	flush()

	if len(out) == 0 {
		return []rawSection{{body: block}}
	}
	return out
}

// setextHeading reports whether lines[i] is a setext-style heading: a
// non-blank text line immediately followed by a line of repeated '='
// or '-' characters (length >= 3). Returns the heading text and the
// number of source lines consumed (2), or ("", 0) if not a match.
func setextHeading(lines []string, i int) (string, int) {
	if i+1 >= len(lines) {
		return "", 0
	}
	text := strings.TrimSpace(lines[i])
	underline := strings.TrimSpace(lines[i+1])
	if text == "" || len(underline) < 3 {
		return "", 0
	}
	if allRune(underline, '=') || allRune(underline, '-') {
		return text, 2
	}
	return "", 0
}

func allRune(s string, r rune) bool {
	n := 0
	for _, c := range s {
		if c != r {
			return false
		}
		n++
	}
	return n > 0
}

// stripHeadingMarker removes a leading ATX `#` run from a heading line;
// non-ATX heading styles (numbered, uppercase, appendix/article) are
// returned unchanged.
func stripHeadingMarker(line string) string {
	trimmed := strings.TrimSpace(line)
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i > 0 && i < len(trimmed) {
		return strings.TrimSpace(trimmed[i:])
	}
	return trimmed
}

// sectionContainerText is the L0 chunk's own text: the heading, plus a
// short preview of the body when there is no heading to stand on its
// own (so a heading-less section is still identifiable in the store).
func sectionContainerText(rs rawSection) string {
	if rs.heading != "" {
		return rs.heading
	}
	body := strings.TrimSpace(rs.body)
	if len(body) <= 200 {
		return body
	}
	idx := strings.LastIndex(body[:200], " ")
	if idx <= 0 {
		idx = 200
	}
	return body[:idx] + "..."
}

// ---------------------------------------------------------------------------
// L1: paragraph splitting
// ---------------------------------------------------------------------------

// splitParagraphs produces L1 chunks from a section's body: sliding
// windows of at most MaxChars runes, each ending at the best available
// boundary at or before the window limit — preferring a blank line,
// then a single newline, then a sentence terminator, then whitespace,
// falling back to an arbitrary character cut. Each window after the
// first starts Overlap characters before the previous window's end, so
// adjacent chunks share that much text verbatim.
func (c *Chunker) splitParagraphs(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.cfg.MaxChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		limit := start + c.cfg.MaxChars
		if limit >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		end := findBoundary(runes, start, limit)
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - c.cfg.Overlap
		if next <= start {
			next = end // guarantee forward progress on pathological input
		}
		start = next
	}
	return chunks
}

// findBoundary returns the best cut point in (start, limit] per the
// separator preference ladder, or limit itself if none is found.
func findBoundary(runes []rune, start, limit int) int {
	if b := lastBlankLine(runes, start, limit); b > start {
		return b
	}
	if b := lastRune(runes, start, limit, '\n'); b > start {
		return b + 1
	}
	if b := lastSentenceEnd(runes, start, limit); b > start {
		return b
	}
	if b := lastRune(runes, start, limit, ' '); b > start {
		return b + 1
	}
	return limit
}

func lastBlankLine(runes []rune, start, limit int) int {
	for j := limit; j > start+1; j-- {
		if runes[j-1] == '\n' && runes[j-2] == '\n' {
			return j
		}
	}
	return -1
}

func lastRune(runes []rune, start, limit int, target rune) int {
	for j := limit - 1; j > start; j-- {
		if runes[j] == target {
			return j
		}
	}
	return -1
}

func lastSentenceEnd(runes []rune, start, limit int) int {
	for j := limit - 1; j > start; j-- {
		r := runes[j]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		if j+1 >= limit || runes[j+1] == ' ' || runes[j+1] == '\n' || runes[j+1] == '\t' {
			return j + 1
		}
	}
	return -1
}
