package dom

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ActivateScript re-materializes a gated script placeholder as an executable
// script node at its anchor: a fresh <script> carrying either the original
// address or the original inline body replaces the placeholder in place.
// Gating attributes and the inert type are not carried over; everything else
// (id, async, defer, ...) is.
func ActivateScript(el Element, src, inline string) error {
	h, ok := el.(*htmlElement)
	if !ok {
		return fmt.Errorf("script anchor does not belong to an HTML document")
	}
	node := h.node
	if node.Parent == nil {
		return fmt.Errorf("script placeholder is detached from the document")
	}

	active := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	for _, a := range node.Attr {
		switch a.Key {
		case "type", "src", AttrPurpose, AttrDeferredSrc:
			continue
		}
		active.Attr = append(active.Attr, a)
	}
	if src != "" {
		active.Attr = append(active.Attr, html.Attribute{Key: "src", Val: src})
	} else {
		active.AppendChild(&html.Node{Type: html.TextNode, Data: inline})
	}

	node.Parent.InsertBefore(active, node)
	node.Parent.RemoveChild(node)
	return nil
}

// ActivateEmbed promotes a gated pixel or iframe: the deferred source becomes
// the real one and the gating attributes are dropped.
func ActivateEmbed(el Element) error {
	src, ok := el.Attr(AttrDeferredSrc)
	if !ok {
		return fmt.Errorf("embed anchor has no deferred source")
	}
	el.SetAttr("src", src)
	el.RemoveAttr(AttrDeferredSrc)
	el.RemoveAttr(AttrPurpose)
	return nil
}
