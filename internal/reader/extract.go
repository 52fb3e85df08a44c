package reader

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

const fallbackBaseURL = "https://localhost/"

// ExtractText derives a plain-text body from stored article HTML. It is used
// when an imported article carries only an HTML representation.
func ExtractText(htmlBody, canonicalURL, title string) (string, error) {
	trimmed := strings.TrimSpace(htmlBody)
	if trimmed == "" {
		return "", fmt.Errorf("html body is empty")
	}

	base, err := url.Parse(strings.TrimSpace(canonicalURL))
	if err != nil || base == nil || base.Host == "" {
		base, _ = url.Parse(fallbackBaseURL)
	}

	article, err := readability.FromReader(bytes.NewReader([]byte(trimmed)), base)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var renderedText bytes.Buffer
	if err := article.RenderText(&renderedText); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(renderedText.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	if text == "" {
		text = strings.TrimSpace(title)
	}
	if text == "" {
		return "", fmt.Errorf("reader extracted empty content")
	}

	return text, nil
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
