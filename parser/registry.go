package parser

import "fmt"

// Registry dispatches a file extension to the Parser that handles it.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a registry covering MindSage's ingestion surface:
// plain text, markdown, PDF text layers, spreadsheets, and archives.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	builtins := []Parser{
		&TextParser{},
		&MarkdownParser{},
		&PDFParser{},
		&XLSXParser{},
		&ArchiveParser{registry: r},
	}
	for _, p := range builtins {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
