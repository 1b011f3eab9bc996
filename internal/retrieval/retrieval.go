// Package retrieval assembles the bounded context string handed to the
// answer-generation call, picking a category from the user's query.
package retrieval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/manualqa/internal/manual"
)

// maxRawContextChars bounds the raw-page fallback so the downstream
// prompt stays within budget.
const maxRawContextChars = 30000

const itemSeparator = "\n---\n"

// intentRule maps a keyword group to a category. Order matters: the
// first matching rule wins.
type intentRule struct {
	category manual.Category
	pattern  *regexp.Regexp
}

var intentRules = []intentRule{
	{manual.CategorySafety, regexp.MustCompile(`safe|warning|danger|hazard|caution`)},
	{manual.CategoryParts, regexp.MustCompile(`part|spec|dimension|weight|model|cpu|ram|gpu`)},
	{manual.CategoryWarranty, regexp.MustCompile(`warranty|coverage|support|contact|claim`)},
	{manual.CategoryErrors, regexp.MustCompile(`error|code|diagnostic|troubleshoot|problem|fix`)},
	{manual.CategoryVideo, regexp.MustCompile(`video|tutorial|link|url|guide`)},
}

// DetectIntent maps a query to a category. Queries matching nothing
// default to procedures, the broadest bucket.
func DetectIntent(query string) manual.Category {
	q := strings.ToLower(query)
	for _, rule := range intentRules {
		if rule.pattern.MatchString(q) {
			return rule.category
		}
	}
	return manual.CategoryProcedures
}

// Context is the per-turn retrieval result. The category is reported so
// the caller can bump per-category usage counters.
type Context struct {
	Category manual.Category
	Text     string
}

// BuildContext picks the intent category and assembles context text
// with a two-level fallback: the category's own bucket, then all
// buckets flattened, then raw page texts truncated to the budget.
func BuildContext(query string, buckets manual.Buckets, pages []manual.PageRecord) Context {
	category := DetectIntent(query)

	if text := renderItems(buckets[category]); text != "" {
		return Context{Category: category, Text: text}
	}

	if text := renderItems(buckets.Flatten()); text != "" {
		return Context{Category: category, Text: text}
	}

	return Context{Category: category, Text: renderRawPages(pages)}
}

func renderItems(items []manual.Item) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("[Page %d] %s", it.Page, it.Text))
	}
	return strings.Join(lines, itemSeparator)
}

func renderRawPages(pages []manual.PageRecord) string {
	var sb strings.Builder
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(itemSeparator)
		}
		sb.WriteString(fmt.Sprintf("[Page %d] %s", p.PageNum, p.Text))
		if sb.Len() >= maxRawContextChars {
			break
		}
	}
	s := sb.String()
	if len(s) > maxRawContextChars {
		s = s[:maxRawContextChars]
	}
	return s
}
