// Package replay delivers captured resources once their purpose is allowed.
// It is the only code in the engine that executes a payload.
package replay

import (
	"fmt"
	"log/slog"

	"assent/internal/loader/consent"
	"assent/internal/loader/dom"
	"assent/internal/loader/gate"
	"assent/internal/loader/registry"
	"assent/internal/site"
)

// Outcome summarizes one replay pass.
type Outcome struct {
	// Considered counts undelivered resources the pass looked at.
	Considered int
	// Delivered counts resources delivered during the pass.
	Delivered int
	// Blocked counts resources whose gate still denies.
	Blocked int
	// Failed counts resources claimed but whose delivery errored. They are
	// spent: delivery is attempted at most once, errors do not re-arm.
	Failed int
	// DeliveredByKind breaks Delivered down per resource kind.
	DeliveredByKind map[registry.Kind]int
}

// Engine replays the registry against the current consent state.
type Engine struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func New(reg *registry.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: reg, logger: logger}
}

// Run iterates the registry once, in insertion order. Each undelivered
// resource is gated; allowed ones are claimed first and delivered second, so
// re-entry, interleaved consent actions, and panicking deliveries all leave
// a resource executed at most once. Resources are independent; no cross-kind
// ordering is promised beyond insertion order.
func (e *Engine) Run(cfg *site.Config, state *consent.State) Outcome {
	out := Outcome{DeliveredByKind: make(map[registry.Kind]int)}

	for _, res := range e.registry.Snapshot() {
		if res.Delivered {
			continue
		}
		out.Considered++

		verdict := gate.Evaluate(res.Purpose, cfg, state)
		if !verdict.Allow {
			out.Blocked++
			continue
		}

		claimed, ok := e.registry.ClaimForDelivery(res.ID)
		if !ok {
			// A re-entrant pass won the claim between our snapshot and now.
			continue
		}

		if err := deliver(claimed); err != nil {
			out.Failed++
			e.logger.Warn("resource delivery failed",
				"resource_id", claimed.ID.String(),
				"kind", string(claimed.Kind),
				"purpose", claimed.Purpose,
				"error", err,
			)
			continue
		}
		out.Delivered++
		out.DeliveredByKind[claimed.Kind]++
	}
	return out
}

func deliver(res registry.Resource) error {
	switch res.Kind {
	case registry.KindScript:
		return dom.ActivateScript(res.Anchor, res.SRC, res.Inline)
	case registry.KindPixel, registry.KindIframe:
		return dom.ActivateEmbed(res.Anchor)
	case registry.KindDynamicScript:
		// Complete the assignment the interceptor deferred. The anchor is
		// the unwrapped element, so this takes effect directly.
		res.Anchor.SetAttr("src", res.SRC)
		return nil
	}
	return fmt.Errorf("unknown resource kind %q", res.Kind)
}
