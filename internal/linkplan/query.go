package linkplan

import (
	"strings"
)

const maxQueryHeadings = 5

// BuildQuery derives the retrieval query from the source's title, its top
// headings and its keyword list. Deterministic for identical input; order is
// title, headings, keywords with duplicates removed case-insensitively.
func BuildQuery(title string, headings []string, keywords string) string {
	parts := make([]string, 0, 2+maxQueryHeadings)
	seen := make(map[string]bool)

	appendPart := func(s string) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if seen[key] {
			return
		}
		seen[key] = true
		parts = append(parts, s)
	}

	appendPart(title)
	for i, h := range headings {
		if i >= maxQueryHeadings {
			break
		}
		appendPart(h)
	}
	for _, kw := range strings.Split(keywords, ",") {
		appendPart(kw)
	}

	return strings.Join(parts, " ")
}
