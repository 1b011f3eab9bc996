package parser

import (
	"bufio"
	"io"
	"strings"
)

// textPageBudget is the rough character size of one pseudo-page built
// from plain text.
const textPageBudget = 2000

// TextParser handles plain text manuals. Form feeds mark explicit page
// breaks; otherwise paragraphs are grouped into pseudo-pages of about
// textPageBudget characters.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := string(src)

	var sections []string
	if strings.Contains(text, "\f") {
		for _, page := range strings.Split(text, "\f") {
			if page = strings.TrimSpace(page); page != "" {
				sections = append(sections, page)
			}
		}
	} else {
		sections = groupParagraphs(text)
	}

	return &Document{
		Title: titleFromFilename(filename),
		Pages: buildPages(sections),
	}, nil
}

// groupParagraphs packs blank-line-separated paragraphs into
// budget-sized pseudo-pages.
func groupParagraphs(text string) []string {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var para strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if para.Len() > 0 {
				paragraphs = append(paragraphs, para.String())
				para.Reset()
			}
			continue
		}
		if para.Len() > 0 {
			para.WriteString("\n")
		}
		para.WriteString(line)
	}
	if para.Len() > 0 {
		paragraphs = append(paragraphs, para.String())
	}

	var pages []string
	var current strings.Builder
	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p) > textPageBudget {
			pages = append(pages, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		pages = append(pages, current.String())
	}
	return pages
}
