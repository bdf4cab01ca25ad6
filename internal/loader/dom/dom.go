// Package dom wraps the parsed HTML tree the engine operates on. It owns the
// document-level gating contract: elements opt into gating by carrying a
// purpose-tag attribute in a non-executing form, and the activation
// primitives here are the only code that promotes them to executable form.
package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Gating contract attributes (document-level, public to page authors).
const (
	// AttrPurpose tags an element with the purpose that gates it. Removing
	// the attribute removes gating for that element.
	AttrPurpose = "data-consent"
	// AttrDeferredSrc holds the real address of a gated pixel, iframe, or
	// external script placeholder until its purpose is allowed.
	AttrDeferredSrc = "data-src"
	// PlaceholderType is the script type that keeps a gated script inert.
	PlaceholderType = "text/plain"
)

// Element is the engine's view of a document element. Implementations inside
// this package are backed by the HTML tree; the interceptor wraps them to
// defer source assignment.
type Element interface {
	TagName() string
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)
	// Text returns the concatenated text children (the inline body of a
	// script placeholder).
	Text() string
}

// ElementFactory is the capability page scripts use to create new elements
// at runtime. The interceptor wraps it so tagged elements can be captured.
type ElementFactory interface {
	CreateElement(tag string) Element
}

// Document is one parsed HTML page.
type Document struct {
	root *html.Node
}

// ParseDocument parses a full HTML page.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// NewDocument returns an empty page. Hosts that run the engine without HTML
// (the gateway's consent action endpoints) boot against it.
func NewDocument() *Document {
	doc, err := ParseDocument(strings.NewReader("<!DOCTYPE html><html><head></head><body></body></html>"))
	if err != nil {
		// The literal above always parses; html.Parse only fails on reader errors.
		panic(err)
	}
	return doc
}

// Render serializes the document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// CreateElement implements ElementFactory: the created element is appended
// to the body so it is part of the rendered page.
func (d *Document) CreateElement(tag string) Element {
	node := &html.Node{
		Type:     html.ElementNode,
		Data:     strings.ToLower(tag),
		DataAtom: atom.Lookup([]byte(strings.ToLower(tag))),
	}
	if parent := d.find(atom.Body); parent != nil {
		parent.AppendChild(node)
	} else {
		d.root.AppendChild(node)
	}
	return &htmlElement{node: node}
}

// GatedElements walks the tree once, in document order, and returns every
// element that matches the gating contract: script placeholders
// (type="text/plain" with a purpose tag) and purpose-tagged img/iframe
// elements with a deferred source. Elements without the purpose tag are
// never collected.
func (d *Document) GatedElements() []Element {
	var out []Element
	walk(d.root, func(n *html.Node) {
		el := &htmlElement{node: n}
		purpose, tagged := el.Attr(AttrPurpose)
		if !tagged || purpose == "" {
			return
		}
		switch n.DataAtom {
		case atom.Script:
			if typ, _ := el.Attr("type"); typ == PlaceholderType {
				out = append(out, el)
			}
		case atom.Img, atom.Iframe:
			if _, ok := el.Attr(AttrDeferredSrc); ok {
				out = append(out, el)
			}
		}
	})
	return out
}

// InjectHeadScript inserts an inline script as the first child of <head>, so
// it runs before any page script. The gateway uses it to install the page
// bootstrap.
func (d *Document) InjectHeadScript(body string) {
	script := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: body})

	parent := d.find(atom.Head)
	if parent == nil {
		parent = d.root
	}
	if parent.FirstChild != nil {
		parent.InsertBefore(script, parent.FirstChild)
		return
	}
	parent.AppendChild(script)
}

func (d *Document) find(a atom.Atom) *html.Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) {
		if found == nil && n.DataAtom == a {
			found = n
		}
	})
	return found
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
