package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/dgallion1/manualqa/internal/structurer"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser extracts positioned text runs per page and reconstructs
// readable text through the structurer. Pages with no extractable text
// keep an empty Text; the OCR fallback fills those in later.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, filename string) (*Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "manualqa-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	f, reader, err := pdflib.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	texts := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, structurePage(page))
	}

	return &Document{
		Title: titleFromFilename(filename),
		Pages: buildPages(texts),
	}, nil
}

// structurePage converts a page's positioned runs into fragments and
// reconstructs row/column-ordered text. Extraction errors degrade to an
// empty page rather than failing the document.
func structurePage(page pdflib.Page) string {
	content := page.Content()
	frags := make([]structurer.Fragment, 0, len(content.Text))
	for _, t := range content.Text {
		frags = append(frags, structurer.Fragment{
			Text:  t.S,
			X:     t.X,
			Y:     t.Y,
			Width: t.W,
		})
	}
	return structurer.Structure(frags, mediaBoxHeight(page))
}

// mediaBoxHeight reads the page height so the structurer can flip the
// bottom-up PDF coordinates. 0 when the MediaBox is absent or odd.
func mediaBoxHeight(page pdflib.Page) float64 {
	mb := page.V.Key("MediaBox")
	if mb.Kind() != pdflib.Array || mb.Len() != 4 {
		return 0
	}
	return mb.Index(3).Float64() - mb.Index(1).Float64()
}
