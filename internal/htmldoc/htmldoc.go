// Package htmldoc wraps goquery/cascadia into the DOM model the selector
// handler needs: parse once, match a CSS selector, mutate in document
// order, re-serialize the whole document (spec §3 "HTML document model",
// §4.5). Grounded on wudi-gateway's go.mod, which carries
// github.com/PuerkitoBio/goquery and github.com/andybalholm/cascadia —
// the idiomatic Go CSS-selector-over-HTML stack.
package htmldoc

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed, mutable HTML document.
type Document struct {
	gq *goquery.Document
}

// Parse reads a full HTML document from body.
func Parse(body []byte) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{gq: gq}, nil
}

// Match compiles selector and returns the matching elements in document
// order. A syntactically invalid selector returns an error (spec §4.5
// "Selector parsing errors" → 400 Bad Request).
func (d *Document) Match(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: invalid selector %q: %w", selector, err)
	}
	return d.gq.FindMatcher(sel).Nodes, nil
}

// OuterHTML renders a single element's outer HTML, used to build the GET
// response body (spec §4.5 "Concatenation of each matching element's outer
// HTML, in document order").
func OuterHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("htmldoc: render: %w", err)
	}
	return buf.String(), nil
}

// ParseFragment parses body as a sequence of top-level HTML nodes in the
// context of <body>, the way a PUT/POST request body is interpreted (spec
// §4.5 "the request body parsed as an HTML fragment"). Each returned node
// is unattached to any document; Clone it before insertion if you need to
// insert the same fragment more than once.
func ParseFragment(body []byte) ([]*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(body), context)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse fragment: %w", err)
	}
	return nodes, nil
}

// Clone deep-copies a node and its subtree so it can be inserted at a new
// location without being ripped out of wherever it currently lives.
func Clone(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(Clone(c))
	}
	return clone
}

// ReplaceWith removes target from the document and inserts a clone of each
// fragment node in its place, preserving fragment order (spec §4.5 PUT
// semantics).
func ReplaceWith(target *html.Node, fragment []*html.Node) {
	parent := target.Parent
	if parent == nil {
		return
	}
	for _, f := range fragment {
		parent.InsertBefore(Clone(f), target)
	}
	parent.RemoveChild(target)
}

// AppendChildren appends a clone of each fragment node as a child of
// target, preserving fragment order (spec §4.5 POST semantics).
func AppendChildren(target *html.Node, fragment []*html.Node) {
	for _, f := range fragment {
		target.AppendChild(Clone(f))
	}
}

// Remove detaches target from its parent (spec §4.5 DELETE semantics).
func Remove(target *html.Node) {
	if target.Parent != nil {
		target.Parent.RemoveChild(target)
	}
}

// Serialize renders the whole document back to bytes (spec §3 "Mutations
// re-serialize the whole document").
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.gq.Nodes[0]); err != nil {
		return nil, fmt.Errorf("htmldoc: serialize: %w", err)
	}
	return buf.Bytes(), nil
}
