// Package parser converts uploaded manual files into ordered page
// records. The PDF path reconstructs page text from positioned
// fragments; other formats split content into pseudo-pages.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgallion1/manualqa/internal/manual"
)

// Document is a parsed manual: a title plus its page records.
type Document struct {
	Title string
	Pages []manual.PageRecord
}

// Parser converts raw file bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
	".txt":      true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".txt":
		return &TextParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

var urlRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// buildPages numbers page texts sequentially and records any URLs
// found in each page.
func buildPages(texts []string) []manual.PageRecord {
	pages := make([]manual.PageRecord, 0, len(texts))
	for i, text := range texts {
		pages = append(pages, manual.PageRecord{
			PageNum: i + 1,
			Text:    text,
			Links:   urlRe.FindAllString(text, -1),
		})
	}
	return pages
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
