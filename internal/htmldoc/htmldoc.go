// Package htmldoc maps plain-text character spans onto HTML markup offsets
// and performs structural anchor insertion. The markup is always handled as a
// parsed node tree; offsets refer to the document's canonical serialized
// form, so they stay stable across parse/render round trips.
package htmldoc

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Span is a [Start,End) range of visible-text rune offsets.
type Span struct {
	Start int
	End   int
}

// Mapping ties a visible-text range to its byte range in the canonical markup.
type Mapping struct {
	VisibleStart int
	VisibleEnd   int
	HTMLStart    int
	HTMLEnd      int
}

type visRune struct {
	r       rune
	start   int
	end     int
	heading bool
	linked  bool
	section int
}

// Document is a parsed HTML body fragment with visible-text addressing.
type Document struct {
	markup   string
	body     *html.Node
	visible  []visRune
	sections int
}

var skippedContainers = map[string]struct{}{
	"script":   {},
	"style":    {},
	"template": {},
	"noscript": {},
	"iframe":   {},
}

var headingTags = map[string]struct{}{
	"h1": {},
	"h2": {},
	"h3": {},
	"h4": {},
	"h5": {},
	"h6": {},
}

// Parse parses an HTML fragment or document and canonicalizes it to the
// serialized form all offsets refer to.
func Parse(raw string) (*Document, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("html is empty")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	body := findBody(doc)
	if body == nil {
		return nil, fmt.Errorf("html has no body")
	}

	markup, err := renderFragment(body)
	if err != nil {
		return nil, err
	}

	d := &Document{markup: markup, body: body}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

func findBody(doc *goquery.Document) *html.Node {
	selection := doc.Find("body")
	if selection.Length() == 0 {
		return nil
	}
	return selection.Get(0)
}

func renderFragment(body *html.Node) (string, error) {
	var buf bytes.Buffer
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buf, child); err != nil {
			return "", fmt.Errorf("render html fragment: %w", err)
		}
	}
	return buf.String(), nil
}

// scan walks the canonical markup and records, for every visible rune, its
// byte range plus heading and section attribution. The walk must agree with
// the tree walk in InsertAnchor on which containers are invisible.
func (d *Document) scan() error {
	markup := d.markup
	visible := make([]visRune, 0, len(markup)/2)

	section := 0
	headingDepth := 0
	linkDepth := 0
	skipDepth := 0
	var skipTag string

	i := 0
	for i < len(markup) {
		if strings.HasPrefix(markup[i:], "<!--") {
			end := strings.Index(markup[i:], "-->")
			if end < 0 {
				return fmt.Errorf("unterminated comment at byte %d", i)
			}
			i += end + len("-->")
			continue
		}

		if markup[i] == '<' {
			close := strings.IndexByte(markup[i:], '>')
			if close < 0 {
				return fmt.Errorf("unterminated tag at byte %d", i)
			}
			tagBody := markup[i+1 : i+close]
			name, isClosing, selfClosing := parseTagName(tagBody)
			i += close + 1

			if name == "" {
				continue
			}
			if _, skipped := skippedContainers[name]; skipped && !selfClosing {
				if isClosing {
					if skipDepth > 0 && name == skipTag {
						skipDepth--
					}
				} else {
					if skipDepth == 0 {
						skipTag = name
					}
					skipDepth++
				}
				continue
			}
			if _, heading := headingTags[name]; heading {
				if isClosing {
					if headingDepth > 0 {
						headingDepth--
					}
				} else {
					section++
					headingDepth++
				}
			}
			if name == "a" {
				if isClosing {
					if linkDepth > 0 {
						linkDepth--
					}
				} else if !selfClosing && tagHasHref(tagBody) {
					linkDepth++
				}
			}
			continue
		}

		if skipDepth > 0 {
			i++
			continue
		}

		if markup[i] == '&' {
			if decoded, entityLen, ok := decodeEntity(markup[i:]); ok {
				for _, r := range decoded {
					visible = append(visible, visRune{
						r:       r,
						start:   i,
						end:     i + entityLen,
						heading: headingDepth > 0,
						linked:  linkDepth > 0,
						section: section,
					})
				}
				i += entityLen
				continue
			}
		}

		r, size := decodeRune(markup[i:])
		visible = append(visible, visRune{
			r:       r,
			start:   i,
			end:     i + size,
			heading: headingDepth > 0,
			linked:  linkDepth > 0,
			section: section,
		})
		i += size
	}

	d.visible = visible
	d.sections = section + 1
	return nil
}

func parseTagName(tagBody string) (name string, closing bool, selfClosing bool) {
	trimmed := strings.TrimSpace(tagBody)
	if trimmed == "" {
		return "", false, false
	}
	if strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "?") {
		return "", false, false
	}
	if strings.HasSuffix(trimmed, "/") {
		selfClosing = true
	}
	if strings.HasPrefix(trimmed, "/") {
		closing = true
		trimmed = trimmed[1:]
	}
	end := 0
	for end < len(trimmed) {
		c := trimmed[end]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/' || c == '>' {
			break
		}
		end++
	}
	return strings.ToLower(trimmed[:end]), closing, selfClosing
}

func tagHasHref(tagBody string) bool {
	for _, field := range strings.Fields(tagBody) {
		field = strings.ToLower(field)
		if field == "href" || strings.HasPrefix(field, "href=") {
			return true
		}
	}
	return false
}

// decodeEntity decodes one leading character reference such as "&amp;".
func decodeEntity(s string) (decoded string, length int, ok bool) {
	const maxEntityLen = 48
	limit := len(s)
	if limit > maxEntityLen {
		limit = maxEntityLen
	}
	semicolon := strings.IndexByte(s[:limit], ';')
	if semicolon <= 0 {
		return "", 0, false
	}
	candidate := s[:semicolon+1]
	decoded = html.UnescapeString(candidate)
	if decoded == candidate {
		return "", 0, false
	}
	return decoded, semicolon + 1, true
}

func decodeRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 1
}

// Markup returns the canonical serialized HTML all offsets refer to.
func (d *Document) Markup() string {
	return d.markup
}

// VisibleText returns the document's visible text.
func (d *Document) VisibleText() string {
	var sb strings.Builder
	sb.Grow(len(d.visible))
	for _, v := range d.visible {
		sb.WriteRune(v.r)
	}
	return sb.String()
}

// SectionCount reports the number of structural sections. Content before the
// first heading counts as one section.
func (d *Document) SectionCount() int {
	if d.sections < 1 {
		return 1
	}
	return d.sections
}

// SectionAt returns the section index for a visible-rune offset.
func (d *Document) SectionAt(offset int) int {
	if offset < 0 || offset >= len(d.visible) {
		return 0
	}
	return d.visible[offset].section
}

// InHeading reports whether any rune in [start,end) belongs to a heading.
func (d *Document) InHeading(start, end int) bool {
	if start < 0 {
		start = 0
	}
	if end > len(d.visible) {
		end = len(d.visible)
	}
	for i := start; i < end; i++ {
		if d.visible[i].heading {
			return true
		}
	}
	return false
}

// Headings returns the visible-text spans of all heading contents, in order.
func (d *Document) Headings() []Span {
	spans := make([]Span, 0, 4)
	open := -1
	for i, v := range d.visible {
		if v.heading && open < 0 {
			open = i
		}
		if !v.heading && open >= 0 {
			spans = append(spans, Span{Start: open, End: i})
			open = -1
		}
	}
	if open >= 0 {
		spans = append(spans, Span{Start: open, End: len(d.visible)})
	}
	return spans
}

// LinkedSections returns the section index of each hyperlink's anchor text,
// in document order. Section occupancy must come from the anchor nodes
// themselves: searching for anchor text can land on an earlier occurrence in
// another section.
func (d *Document) LinkedSections() []int {
	sections := make([]int, 0, 2)
	inLink := false
	for _, v := range d.visible {
		if v.linked && !inLink {
			sections = append(sections, v.section)
		}
		inLink = v.linked
	}
	return sections
}

// MapVisibleRange maps a visible-rune range onto markup byte offsets.
func (d *Document) MapVisibleRange(vStart, vEnd int) (Mapping, error) {
	if vStart < 0 || vEnd > len(d.visible) || vStart >= vEnd {
		return Mapping{}, fmt.Errorf("visible range [%d,%d) out of bounds (len=%d)", vStart, vEnd, len(d.visible))
	}
	return Mapping{
		VisibleStart: vStart,
		VisibleEnd:   vEnd,
		HTMLStart:    d.visible[vStart].start,
		HTMLEnd:      d.visible[vEnd-1].end,
	}, nil
}

// FindVisible locates occurrence #ordinal (0-based) of needle in the visible
// text. Runs of whitespace in either side match any whitespace run, so plain
// text and HTML layouts that differ only in spacing still align.
func (d *Document) FindVisible(needle string, ordinal int) (int, int, error) {
	target := []rune(strings.TrimSpace(needle))
	if len(target) == 0 {
		return 0, 0, fmt.Errorf("needle is empty")
	}
	if ordinal < 0 {
		return 0, 0, fmt.Errorf("ordinal must be >= 0")
	}

	seen := 0
	for i := 0; i < len(d.visible); i++ {
		end, ok := d.matchAt(i, target)
		if !ok {
			continue
		}
		if seen == ordinal {
			return i, end, nil
		}
		seen++
		// Restart after the match start so overlapping occurrences count once.
	}
	return 0, 0, fmt.Errorf("visible occurrence %d of %q not found", ordinal, needle)
}

func (d *Document) matchAt(start int, target []rune) (int, bool) {
	i := start
	j := 0
	for j < len(target) {
		if i >= len(d.visible) {
			return 0, false
		}
		tr := target[j]
		vr := d.visible[i].r

		if unicode.IsSpace(tr) {
			if !unicode.IsSpace(vr) {
				return 0, false
			}
			for i < len(d.visible) && unicode.IsSpace(d.visible[i].r) {
				i++
			}
			for j < len(target) && unicode.IsSpace(target[j]) {
				j++
			}
			continue
		}

		if vr != tr {
			return 0, false
		}
		i++
		j++
	}
	return i, true
}
