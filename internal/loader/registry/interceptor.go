package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"assent/internal/loader/dom"
	"assent/internal/loader/metrics"
	"assent/pkg/platform/sentinel"
)

// UntaggedPolicy decides what happens when a dynamically created element
// receives a source without carrying a purpose tag. Untagged elements are
// never registered for replay; they either pass through or are dropped.
type UntaggedPolicy string

const (
	// UntaggedAllowResolved passes untagged sources through once consent has
	// been resolved at least once this session, and drops them with a
	// warning before that. This is the default: a declared posture, not a
	// silent security boundary.
	UntaggedAllowResolved UntaggedPolicy = "allow_resolved"
	// UntaggedAllowAlways never interferes with untagged sources.
	UntaggedAllowAlways UntaggedPolicy = "allow_always"
	// UntaggedBlockAlways drops every untagged source with a warning.
	UntaggedBlockAlways UntaggedPolicy = "block_always"
)

// InterceptorOptions configure dynamic capture. Allow and Resolved are read
// on every intercepted source assignment; nil callbacks deny.
type InterceptorOptions struct {
	Policy   UntaggedPolicy
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Allow    func(purpose string) bool
	Resolved func() bool
}

// Interceptor wraps an element factory so purpose-tagged elements created at
// runtime defer their source assignment until their purpose is allowed.
// There is exactly one interceptor per engine, with an explicit
// install/uninstall lifecycle instead of patching scattered through the code.
type Interceptor struct {
	mu        sync.Mutex
	installed bool

	factory  dom.ElementFactory
	registry *Registry
	policy   UntaggedPolicy
	logger   *slog.Logger
	metrics  *metrics.Metrics
	allow    func(purpose string) bool
	resolved func() bool
}

func NewInterceptor(factory dom.ElementFactory, reg *Registry, opts InterceptorOptions) *Interceptor {
	if opts.Policy == "" {
		opts.Policy = UntaggedAllowResolved
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Allow == nil {
		opts.Allow = func(string) bool { return false }
	}
	if opts.Resolved == nil {
		opts.Resolved = func() bool { return false }
	}
	return &Interceptor{
		factory:  factory,
		registry: reg,
		policy:   opts.Policy,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		allow:    opts.Allow,
		resolved: opts.Resolved,
	}
}

// Install begins intercepting element creation. Installing twice is a
// programming error and fails instead of stacking wrappers.
func (i *Interceptor) Install() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.installed {
		return fmt.Errorf("interceptor already installed: %w", sentinel.ErrInvalidState)
	}
	i.installed = true
	return nil
}

// Uninstall restores pass-through element creation. Idempotent.
func (i *Interceptor) Uninstall() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.installed = false
}

// CreateElement implements dom.ElementFactory. While installed, elements
// that can load a source (script, img, iframe) come back wrapped; everything
// else, and everything while uninstalled, is the factory's element untouched.
func (i *Interceptor) CreateElement(tag string) dom.Element {
	el := i.factory.CreateElement(tag)

	i.mu.Lock()
	installed := i.installed
	i.mu.Unlock()

	if !installed || !interceptable(el.TagName()) {
		return el
	}
	return &interceptedElement{under: el, icp: i}
}

func interceptable(tag string) bool {
	switch tag {
	case "script", "img", "iframe":
		return true
	}
	return false
}

// interceptedElement defers source assignment on a wrapped element. All
// other attribute traffic passes straight through. Like the document tree
// itself, an element is not safe for concurrent mutation.
type interceptedElement struct {
	under      dom.Element
	icp        *Interceptor
	resID      ulid.ULID
	registered bool
}

func (e *interceptedElement) TagName() string { return e.under.TagName() }

func (e *interceptedElement) Attr(n string) (string, bool) { return e.under.Attr(n) }

func (e *interceptedElement) RemoveAttr(n string) { e.under.RemoveAttr(n) }

func (e *interceptedElement) Text() string { return e.under.Text() }

func (e *interceptedElement) SetAttr(name, value string) {
	if name != "src" {
		e.under.SetAttr(name, value)
		return
	}

	purpose, _ := e.under.Attr(dom.AttrPurpose)
	if purpose == "" {
		e.icp.handleUntagged(e.under, value)
		return
	}

	// Fast path: an already-allowed purpose loads immediately, no registry
	// entry, no replay involvement.
	if e.icp.allow(purpose) {
		e.under.SetAttr("src", value)
		return
	}

	e.icp.deferSource(e, purpose, value)
}

func (i *Interceptor) deferSource(e *interceptedElement, purpose, value string) {
	if e.registered {
		if i.registry.UpdateSource(e.resID, value) {
			return
		}
		// The anchor was already delivered once; a resource is never
		// re-created for the same anchor.
		i.logger.Warn("dropping source assignment on delivered element",
			"tag", e.under.TagName(), "purpose", purpose)
		return
	}

	res := i.registry.Register(KindDynamicScript, purpose, value, "", e.under)
	e.resID = res.ID
	e.registered = true
	i.metrics.AddRegistered(string(KindDynamicScript), 1)
	i.logger.Debug("deferred dynamic resource",
		"tag", e.under.TagName(), "purpose", purpose, "resource_id", res.ID.String())
}

func (i *Interceptor) handleUntagged(el dom.Element, value string) {
	switch i.policy {
	case UntaggedAllowAlways:
		el.SetAttr("src", value)
	case UntaggedBlockAlways:
		i.logger.Warn("dropped untagged dynamic resource",
			"tag", el.TagName(), "src", value, "policy", string(i.policy))
	default:
		if i.resolved() {
			el.SetAttr("src", value)
			return
		}
		i.logger.Warn("dropped untagged dynamic resource before consent resolution",
			"tag", el.TagName(), "src", value, "policy", string(i.policy))
	}
}
