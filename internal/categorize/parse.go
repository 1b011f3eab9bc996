package categorize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseLevel records which rung of the repair ladder produced a result.
type ParseLevel int

const (
	ParseDirect ParseLevel = iota
	ParseSubstring
	ParseRepaired
)

func (l ParseLevel) String() string {
	switch l {
	case ParseDirect:
		return "direct"
	case ParseSubstring:
		return "substring"
	case ParseRepaired:
		return "repaired"
	}
	return "unknown"
}

// ParseError reports a response that survived no rung of the repair
// ladder. Fatal to the extraction run: a silent empty result would be
// indistinguishable from a manual with no extractable knowledge.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return "categorize: unparseable JSON response: " + truncate(e.Raw, 200)
}

var (
	codeFenceRe     = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseJSONResponse parses an LLM response that should be a JSON
// object but often isn't quite. Ladder: strip code fences, direct
// parse, first-{ to last-} substring, then textual repairs. The repair
// rung is heuristic and can corrupt legitimate content, so callers log
// any level above direct.
func ParseJSONResponse(raw string) (map[string]any, ParseLevel, error) {
	s := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj, ParseDirect, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, 0, &ParseError{Raw: raw}
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), &obj); err == nil {
		return obj, ParseSubstring, nil
	}

	repaired := repairJSON(sub)
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		return obj, ParseRepaired, nil
	}

	return nil, 0, &ParseError{Raw: raw}
}

// repairJSON applies last-resort textual fixes: bare newlines inside
// string values become \n escapes, trailing commas before }/] are
// stripped, and single-quoted strings become double-quoted.
func repairJSON(s string) string {
	s = escapeBareNewlines(s)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	if !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}

// escapeBareNewlines walks the input tracking double-quoted string
// state and escapes control characters found inside strings.
func escapeBareNewlines(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				sb.WriteString(`\n`)
				continue
			case r == '\r':
				sb.WriteString(`\r`)
				continue
			case r == '\t':
				sb.WriteString(`\t`)
				continue
			}
		} else if r == '"' {
			inString = true
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
