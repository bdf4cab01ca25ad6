package loader

import (
	"context"

	"assent/internal/loader/consent"
	"assent/internal/loader/dom"
	"assent/internal/loader/events"
	"assent/internal/loader/gate"
	"assent/internal/site"
)

// The control surface is the only part of the engine reachable by
// third-party page scripts. Every method here tolerates being called at any
// point in the lifecycle: before Boot, during the config fetch, after a
// config failure. Misuse yields zero values, never panics.

// Ready reports whether the configuration is loaded and consent actions are
// available.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg != nil
}

// Resolved reports whether a consent decision is currently in effect.
func (e *Engine) Resolved() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state != nil
}

// HasConsent reports whether a purpose may load right now. Before the
// configuration arrives every answer is false.
func (e *Engine) HasConsent(purpose string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return gate.Allowed(purpose, e.cfg, e.state)
}

// Consent returns a defensive copy of the current decision, or nil while
// unresolved.
func (e *Engine) Consent() *consent.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Language returns the resolved working language, or "" before boot
// completes.
func (e *Engine) Language() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.language
}

// Localized returns the configuration flattened to the working language for
// banner and settings rendering. ok is false until the engine is ready.
func (e *Engine) Localized() (view site.LocalizedView, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cfg == nil {
		return site.LocalizedView{}, false
	}
	return e.cfg.Localized(e.language), true
}

// OpenSettings announces that the visitor asked for the settings surface and
// returns the localized view to render it from. A no-op returning ok=false
// until the configuration is loaded.
func (e *Engine) OpenSettings(ctx context.Context) (view site.LocalizedView, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cfg == nil {
		return site.LocalizedView{}, false
	}
	e.publishLocked(ctx, events.EventSettingsRequested)
	return e.cfg.Localized(e.language), true
}

// CreateElement is the element-creation capability handed to page scripts.
// While the engine runs, elements that can load a source come back wrapped
// so assignments to gated purposes are captured.
func (e *Engine) CreateElement(tag string) dom.Element {
	return e.icp.CreateElement(tag)
}

// Document returns the page the engine gates. Hosts render it after boot
// and consent actions have mutated it.
func (e *Engine) Document() *dom.Document {
	return e.doc
}

// Subscribe registers a handler for one event type on the engine's bus and
// returns an unsubscribe function.
func (e *Engine) Subscribe(typ events.EventType, handler events.EventHandler) func() {
	return e.bus.Subscribe(typ, handler)
}
