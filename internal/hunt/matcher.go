// Package hunt sweeps indexed documents for analyst-defined indicators and
// flags the documents that contain them.
package hunt

import (
	"strings"

	"casefile/internal/artifact"
)

// matcher is one compiled indicator comparison. Compilation happens once per
// run, not once per document.
type matcher struct {
	indicator *artifact.Indicator
	strategy  artifact.MatchStrategy
	needle    string
	terms     []string
}

func compile(ind *artifact.Indicator) matcher {
	strategy := ind.Strategy
	if strategy == "" {
		strategy = artifact.DefaultStrategy(ind.Type)
	}
	m := matcher{indicator: ind, strategy: strategy}
	switch strategy {
	case artifact.MatchNormalized:
		m.needle = normalize(ind.Value)
	case artifact.MatchTermSet:
		m.needle = strings.ToLower(strings.TrimSpace(ind.Value))
		m.terms = strings.Fields(m.needle)
	default:
		m.needle = strings.ToLower(strings.TrimSpace(ind.Value))
	}
	return m
}

// matchesDocument walks the document's nested fields and reports whether any
// string value satisfies the indicator.
func (m matcher) matchesDocument(fields map[string]any) bool {
	return walkStrings(fields, m.matchValue)
}

func (m matcher) matchValue(value string) bool {
	switch m.strategy {
	case artifact.MatchExact:
		return strings.ToLower(strings.TrimSpace(value)) == m.needle
	case artifact.MatchNormalized:
		return normalize(value) == m.needle
	case artifact.MatchPhrase:
		return strings.Contains(strings.ToLower(value), m.needle)
	case artifact.MatchTermSet:
		haystack := strings.ToLower(value)
		for _, term := range m.terms {
			if !strings.Contains(haystack, term) {
				return false
			}
		}
		return len(m.terms) > 0
	default:
		return false
	}
}

// normalize folds case and separator variants so values recorded by
// different sources still compare equal. Backslashes become forward slashes
// and trailing separators or dots are dropped.
func normalize(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, "\\", "/")
	v = strings.TrimRight(v, "/.")
	return v
}

// walkStrings applies fn to every string leaf in a nested field tree,
// returning true on the first hit.
func walkStrings(value any, fn func(string) bool) bool {
	switch v := value.(type) {
	case string:
		return fn(v)
	case map[string]any:
		for _, child := range v {
			if walkStrings(child, fn) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if walkStrings(child, fn) {
				return true
			}
		}
	}
	return false
}
