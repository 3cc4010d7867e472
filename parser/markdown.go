package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MarkdownParser handles .md/.markdown files, splitting on ATX headings
// ("# Heading") into sections with their nesting level.
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md", "markdown"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}
	return parseMarkdownText(string(data), filepath.Base(path)), nil
}

// parseMarkdownText is split out from Parse so the archive parser can feed
// it content read from a zip entry without touching the filesystem.
func parseMarkdownText(content string, name string) *ParseResult {
	lines := strings.Split(content, "\n")
	var sections []Section
	var body strings.Builder
	heading := name
	level := 1

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text == "" && heading == name {
			return
		}
		sections = append(sections, Section{
			Heading: heading,
			Content: text,
			Level:   level,
			Type:    "section",
		})
		body.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if h, lvl, ok := atxHeading(trimmed); ok {
			flush()
			heading = h
			level = lvl
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	if len(sections) == 0 {
		return &ParseResult{Method: "native"}
	}
	return &ParseResult{Sections: sections, Method: "native"}
}

// atxHeading reports whether line is a "#"-style ATX heading and, if so,
// returns its text and depth (1-6).
func atxHeading(line string) (string, int, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] != '#' {
		return "", 0, false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n == len(trimmed) {
		return "", 0, false
	}
	if trimmed[n] != ' ' {
		return "", 0, false
	}
	return strings.TrimSpace(trimmed[n:]), n, true
}
