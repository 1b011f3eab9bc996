// Package categorize turns a manual's compressed pages into normalized
// per-category knowledge buckets via a single LLM call.
package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/manualqa/internal/llm"
	"github.com/dgallion1/manualqa/internal/manual"
)

// Categorizer drives the categorization call and normalizes its output.
type Categorizer struct {
	client *llm.Client
	log    *slog.Logger
}

func New(client *llm.Client, log *slog.Logger) *Categorizer {
	return &Categorizer{client: client, log: log}
}

// BuildCorpus concatenates compressed pages into the prompt body the
// categorizer reads, one "[PAGE n]:" block per page.
func BuildCorpus(pages []manual.CompressedPage) string {
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		blocks = append(blocks, fmt.Sprintf("[PAGE %d]:\n%s", p.PageNum, p.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// instruction asks for the fixed JSON bucket shape. A single page may
// legitimately land in several categories when its content is mixed.
func instruction() string {
	var sb strings.Builder
	sb.WriteString("You are indexing a product manual. Read the page blocks below and sort every piece of useful information into categories.\n\nCategories:\n")
	for _, cat := range manual.CategoryOrder {
		info := manual.Categories[cat]
		sb.WriteString(fmt.Sprintf("- %s: %s\n", cat, info.Prompt))
	}
	sb.WriteString(`
Respond with ONLY a JSON object of this exact shape:
{"safety":[],"parts":[],"warranty":[],"procedures":[],"errors":[],"video":[]}
Each array holds objects like {"page": <source page number>, "text": "<one extracted fact>"}.
Rules:
- Attribute every item to the page number of its [PAGE n] block.
- A page with mixed content may contribute items to several categories.
- Omit filler; do not emit "none" or "N/A" items.
- No markdown, no commentary, JSON only.`)
	return sb.String()
}

// Categorize sends the compressed pages to the LLM and returns fully
// normalized buckets. Any parse or response-structure failure is
// returned as-is so the caller can keep its previously stored buckets;
// partial results are never produced.
func (c *Categorizer) Categorize(ctx context.Context, pages []manual.CompressedPage) (manual.Buckets, error) {
	corpus := BuildCorpus(pages)
	prompt := instruction() + "\n\n---\n" + corpus

	raw, err := c.client.Generate(ctx, []llm.Part{llm.TextPart(prompt)}, true)
	if err != nil {
		return nil, fmt.Errorf("categorization call: %w", err)
	}

	obj, level, err := ParseJSONResponse(raw)
	if err != nil {
		return nil, err
	}
	if level != ParseDirect {
		c.log.Warn("categorization response needed repair", "level", level.String())
	}

	buckets := Normalize(obj)
	c.log.Info("categorization complete",
		"pages", len(pages),
		"categories", len(buckets),
		"items", buckets.TotalItems(),
	)
	return buckets, nil
}
