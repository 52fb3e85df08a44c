package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 100

var (
	nonSlugChars = regexp.MustCompile("[^a-z0-9-]+")
	hyphenRuns   = regexp.MustCompile("-+")
)

// Normalize canonicalizes a slug or title for duplicate-target comparison.
// Two articles whose titles normalize to the same value are treated as the
// same link target.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	s = transliterate(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}

// NormalizeWithFallback normalizes s, falling back when the result is empty.
func NormalizeWithFallback(s, fallback string) string {
	normalized := Normalize(s)
	if normalized == "" {
		return Normalize(fallback)
	}
	return normalized
}

func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
