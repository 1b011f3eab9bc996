package categorize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/manualqa/internal/manual"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// placeholders the model emits when it found nothing, compared after
// lowercasing.
var placeholderExact = map[string]bool{
	"":     true,
	"none": true,
	"n/a":  true,
	"na":   true,
	"-":    true,
}

var placeholderPrefixes = []string{"no ", "none ", "please visit"}

// Normalize converts a parsed categorization object into buckets,
// keeping only items that survive cleaning. Unknown category keys are
// ignored; categories with no surviving items are pruned entirely.
func Normalize(obj map[string]any) manual.Buckets {
	buckets := make(manual.Buckets)
	for _, cat := range manual.CategoryOrder {
		rawItems, ok := obj[string(cat)].([]any)
		if !ok {
			continue
		}
		var items []manual.Item
		for _, ri := range rawItems {
			item, ok := normalizeItem(ri)
			if !ok {
				continue
			}
			items = append(items, item)
		}
		if len(items) > 0 {
			buckets[cat] = items
		}
	}
	return buckets
}

// normalizeItem derives a page and clean text from one raw item. Items
// may be plain strings, {page,text} objects, or arbitrary structured
// objects from models that ignore the requested shape.
func normalizeItem(raw any) (manual.Item, bool) {
	var page int
	var text string

	switch v := raw.(type) {
	case string:
		text = v
	case map[string]any:
		page = pageNumber(v["page"])
		if s, ok := v["text"].(string); ok {
			text = s
		} else {
			text = synthesizeText(v)
		}
	default:
		return manual.Item{}, false
	}

	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if isPlaceholder(text) {
		return manual.Item{}, false
	}
	return manual.Item{Page: page, Text: text}, true
}

// synthesizeText flattens a structured item into "key: value" pairs,
// covering models that return fields like {code, meaning} instead of a
// text field. Keys are sorted for deterministic output.
func synthesizeText(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if k == "page" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, stringify(obj[k])))
	}
	return strings.Join(parts, ", ")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// pageNumber tolerates the page arriving as a JSON number or a string.
func pageNumber(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

func isPlaceholder(text string) bool {
	lower := strings.ToLower(text)
	if placeholderExact[lower] {
		return true
	}
	for _, prefix := range placeholderPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return len(text) < 3
}
