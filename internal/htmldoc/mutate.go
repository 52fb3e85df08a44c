package htmldoc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InsertAnchor wraps the visible range [vStart,vEnd) in an <a href> element.
// The span must fall inside a single text node; a span crossing element
// boundaries is ambiguous and rejected. The mutation happens on the node
// tree, never by splicing markup. The receiver is consumed; callers must use
// the returned re-parsed Document.
func (d *Document) InsertAnchor(vStart, vEnd int, href string) (*Document, error) {
	if vStart < 0 || vEnd > len(d.visible) || vStart >= vEnd {
		return nil, fmt.Errorf("visible range [%d,%d) out of bounds (len=%d)", vStart, vEnd, len(d.visible))
	}
	if strings.TrimSpace(href) == "" {
		return nil, fmt.Errorf("href is required")
	}

	node, offset, err := d.textNodeAt(vStart)
	if err != nil {
		return nil, err
	}

	runes := []rune(node.Data)
	localStart := vStart - offset
	localEnd := vEnd - offset
	if localEnd > len(runes) {
		return nil, fmt.Errorf("anchor span crosses element boundary")
	}

	parent := node.Parent
	if parent == nil {
		return nil, fmt.Errorf("text node has no parent")
	}
	if isHeadingAncestor(parent) {
		return nil, fmt.Errorf("anchor span is inside a heading")
	}

	anchor := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr:     []html.Attribute{{Key: "href", Val: href}},
	}
	anchor.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: string(runes[localStart:localEnd]),
	})

	if localStart > 0 {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(runes[:localStart])}, node)
	}
	parent.InsertBefore(anchor, node)
	if localEnd < len(runes) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(runes[localEnd:])}, node)
	}
	parent.RemoveChild(node)

	markup, err := renderFragment(d.body)
	if err != nil {
		return nil, err
	}
	return Parse(markup)
}

// textNodeAt finds the visible text node containing the visible offset and
// the cumulative visible offset at which that node starts. The walk skips the
// same invisible containers as the markup scanner, so both agree on offsets.
func (d *Document) textNodeAt(target int) (*html.Node, int, error) {
	count := 0
	var found *html.Node
	foundOffset := 0

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		switch n.Type {
		case html.TextNode:
			runes := len([]rune(n.Data))
			if target < count+runes {
				found = n
				foundOffset = count
				return true
			}
			count += runes
		case html.ElementNode:
			if _, skipped := skippedContainers[strings.ToLower(n.Data)]; skipped {
				return false
			}
		case html.CommentNode:
			return false
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}

	for child := d.body.FirstChild; child != nil; child = child.NextSibling {
		if walk(child) {
			return found, foundOffset, nil
		}
	}
	return nil, 0, fmt.Errorf("no text node at visible offset %d", target)
}

func isHeadingAncestor(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if _, heading := headingTags[strings.ToLower(cur.Data)]; heading {
			return true
		}
	}
	return false
}

// SynthesizeFromPlainText builds minimal paragraph HTML for an article whose
// HTML body is still absent at first mutation.
func SynthesizeFromPlainText(plain string) string {
	trimmed := strings.TrimSpace(plain)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(trimmed, "\r\n", "\n")
	blocks := strings.Split(normalized, "\n\n")

	var sb strings.Builder
	for _, block := range blocks {
		clean := strings.Join(strings.Fields(strings.TrimSpace(block)), " ")
		if clean == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(clean))
		sb.WriteString("</p>")
	}
	return sb.String()
}
