package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// ArchiveParser iterates the entries of a zip archive — the shape of a
// ChatGPT or Facebook data export, or a device-to-device file transfer
// bundle — and parses each entry by its extension: txt, json, html and
// htm entries are taken as plain text, md and markdown entries as
// markdown. Entries are not dispatched through the registry, so every
// other extension (pdf, xlsx, nested zip) is skipped with a warning; a
// single unreadable entry does not fail the whole archive.
type ArchiveParser struct {
	registry *Registry
}

func (p *ArchiveParser) SupportedFormats() []string { return []string{"zip"} }

func (p *ArchiveParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	var sections []Section
	for _, entry := range r.File {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if entry.FileInfo().IsDir() {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name)), ".")
		entrySections, err := p.parseEntry(entry, ext)
		if err != nil {
			slog.Warn("archive entry skipped", "name", entry.Name, "error", err)
			continue
		}
		for i := range entrySections {
			if entrySections[i].Metadata == nil {
				entrySections[i].Metadata = map[string]string{}
			}
			entrySections[i].Metadata["archive_entry"] = entry.Name
		}
		sections = append(sections, entrySections...)
	}

	if len(sections) == 0 {
		return &ParseResult{Method: "native"}, nil
	}
	return &ParseResult{Sections: sections, Method: "native"}, nil
}

func (p *ArchiveParser) parseEntry(entry *zip.File, ext string) ([]Section, error) {
	switch ext {
	case "txt", "json", "html", "htm":
		rc, err := entry.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil, nil
		}
		return []Section{{
			Heading: filepath.Base(entry.Name),
			Content: content,
			Level:   1,
			Type:    "paragraph",
		}}, nil
	case "md", "markdown":
		rc, err := entry.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return parseMarkdownText(string(data), filepath.Base(entry.Name)).Sections, nil
	default:
		return nil, fmt.Errorf("no parser for entry format: %s", ext)
	}
}
