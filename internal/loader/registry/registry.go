// Package registry captures gated resources and owns their delivery marks.
// Resources enter through the static document scan or through the dynamic
// element interceptor; they leave through the replay engine, each at most
// once. Registering a resource never evaluates or executes its payload.
package registry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"assent/internal/loader/dom"
)

// Kind classifies how a resource was captured and how it is delivered.
type Kind string

const (
	// KindScript is a statically scanned script placeholder.
	KindScript Kind = "script"
	// KindDynamicScript is a deferred source assignment captured by the
	// interceptor at runtime.
	KindDynamicScript Kind = "dynamic-script"
	// KindPixel is a tracking image with a deferred source.
	KindPixel Kind = "pixel"
	// KindIframe is an embedded frame with a deferred source.
	KindIframe Kind = "iframe"
)

// Resource is a point-in-time view of one captured resource. Views are value
// copies; the delivery mark they carry is a snapshot, the live mark belongs
// to the registry.
type Resource struct {
	ID        ulid.ULID
	Kind      Kind
	Purpose   string
	SRC       string
	Inline    string
	Anchor    dom.Element
	Delivered bool
}

type resource struct {
	id        ulid.ULID
	kind      Kind
	purpose   string
	src       string
	inline    string
	anchor    dom.Element
	delivered bool
}

func (r *resource) view() Resource {
	return Resource{
		ID:        r.id,
		Kind:      r.kind,
		Purpose:   r.purpose,
		SRC:       r.src,
		Inline:    r.inline,
		Anchor:    r.anchor,
		Delivered: r.delivered,
	}
}

// Registry holds captured resources in insertion order. All mutation goes
// through its methods; the zero delivery mark flips exactly once.
type Registry struct {
	mu        sync.Mutex
	entropy   *ulid.MonotonicEntropy
	resources []*resource
	index     map[ulid.ULID]*resource
	scanned   bool
}

func New() *Registry {
	return &Registry{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		index:   make(map[ulid.ULID]*resource),
	}
}

// ScanDocument walks the page once and registers every element matching the
// gating contract, in document order. Repeat calls are no-ops: scanning
// happens exactly once per page load, reopening settings must not
// re-register known resources. Returns the number of resources captured.
func (g *Registry) ScanDocument(doc *dom.Document) int {
	g.mu.Lock()
	if g.scanned {
		g.mu.Unlock()
		return 0
	}
	g.scanned = true
	g.mu.Unlock()

	n := 0
	for _, el := range doc.GatedElements() {
		purpose, _ := el.Attr(dom.AttrPurpose)
		src, _ := el.Attr(dom.AttrDeferredSrc)

		switch el.TagName() {
		case "script":
			inline := ""
			if src == "" {
				inline = el.Text()
			}
			g.Register(KindScript, purpose, src, inline, el)
		case "img":
			g.Register(KindPixel, purpose, src, "", el)
		case "iframe":
			g.Register(KindIframe, purpose, src, "", el)
		default:
			continue
		}
		n++
	}
	return n
}

// Register appends one resource and returns its view.
func (g *Registry) Register(kind Kind, purpose, src, inline string, anchor dom.Element) Resource {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := &resource{
		id:      ulid.MustNew(ulid.Now(), g.entropy),
		kind:    kind,
		purpose: purpose,
		src:     src,
		inline:  inline,
		anchor:  anchor,
	}
	g.resources = append(g.resources, res)
	g.index[res.id] = res
	return res.view()
}

// Snapshot returns views of all resources in insertion order.
func (g *Registry) Snapshot() []Resource {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Resource, len(g.resources))
	for i, res := range g.resources {
		out[i] = res.view()
	}
	return out
}

// ClaimForDelivery marks a resource delivered and returns its current view.
// The mark flips under the registry lock, so exactly one caller wins; every
// later claim reports false. Claiming before delivering is what gives the
// replay engine at-most-once execution even when re-entered.
func (g *Registry) ClaimForDelivery(id ulid.ULID) (Resource, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.index[id]
	if !ok || res.delivered {
		return Resource{}, false
	}
	res.delivered = true
	return res.view(), true
}

// UpdateSource replaces the deferred payload of a not-yet-delivered resource.
// A later source assignment on the same intercepted element overwrites the
// earlier one instead of creating a second resource for the same anchor.
func (g *Registry) UpdateSource(id ulid.ULID, src string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.index[id]
	if !ok || res.delivered {
		return false
	}
	res.src = src
	return true
}

// Len returns the number of captured resources.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.resources)
}

// DeliveredCount returns how many resources have been delivered.
func (g *Registry) DeliveredCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, res := range g.resources {
		if res.delivered {
			n++
		}
	}
	return n
}
