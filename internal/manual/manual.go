// Package manual holds the domain model for an ingested manual: its
// reconstructed pages and the knowledge buckets derived from them.
package manual

import "time"

// PageRecord is one page's reconstructed content. Created once during
// ingestion; Text may later be replaced by an OCR fallback, everything
// else is immutable.
type PageRecord struct {
	PageNum  int      `json:"page_num"`
	Text     string   `json:"text"`
	ImageRef string   `json:"image_ref,omitempty"`
	Links    []string `json:"links,omitempty"`
}

// CompressedPage exists only inside a single extraction run.
type CompressedPage struct {
	PageNum int
	Text    string
}

// Item is a normalized fact attributed to a source page. Text is
// non-empty, non-placeholder, and at least 3 characters after cleaning.
type Item struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Buckets maps categories to their extracted items, in the order the
// categorizer emitted them. A category absent from the map means no
// items were found; empty slices are never stored.
type Buckets map[Category][]Item

// TotalItems counts items across all buckets.
func (b Buckets) TotalItems() int {
	n := 0
	for _, items := range b {
		n += len(items)
	}
	return n
}

// Flatten returns all items in stable category order.
func (b Buckets) Flatten() []Item {
	var out []Item
	for _, cat := range CategoryOrder {
		out = append(out, b[cat]...)
	}
	return out
}

// Manual is the aggregate owning a manual's pages and derived buckets.
// Buckets are replaced wholesale after a successful extraction run;
// partial categorization results are never written.
type Manual struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Filename string       `json:"filename"`
	Pages    []PageRecord `json:"pages"`
	Buckets  Buckets      `json:"buckets,omitempty"`

	// ExtractedAt distinguishes "never categorized" from "categorized,
	// found nothing" without changing the bucket shape.
	ExtractedAt *time.Time `json:"extracted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// New creates a manual from freshly parsed pages.
func New(id, title, filename string, pages []PageRecord) *Manual {
	if title == "" {
		title = filename
	}
	return &Manual{
		ID:        id,
		Title:     title,
		Filename:  filename,
		Pages:     pages,
		CreatedAt: time.Now(),
	}
}

// ReplaceBuckets installs a fully normalized categorization result.
func (m *Manual) ReplaceBuckets(b Buckets, at time.Time) {
	m.Buckets = b
	m.ExtractedAt = &at
}

// Extracted reports whether a categorization run has completed for the
// current page set.
func (m *Manual) Extracted() bool {
	return m.ExtractedAt != nil
}
