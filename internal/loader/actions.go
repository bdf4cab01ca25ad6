package loader

import (
	"context"

	"assent/internal/loader/consent"
	"assent/internal/loader/events"
	"assent/internal/site"
	dErrors "assent/pkg/domain-errors"
)

// AcceptAll grants every declared purpose.
func (e *Engine) AcceptAll(ctx context.Context) error {
	return e.mutate(ctx, "accept_all", func(cfg *site.Config) map[string]bool {
		grants := make(map[string]bool, len(cfg.Purposes))
		for _, p := range cfg.Purposes {
			grants[p.Key] = true
		}
		return grants
	})
}

// RejectAll refuses every optional purpose. Required purposes stay granted;
// no opt-out exists for them.
func (e *Engine) RejectAll(ctx context.Context) error {
	return e.mutate(ctx, "reject_all", func(cfg *site.Config) map[string]bool {
		grants := make(map[string]bool, len(cfg.Purposes))
		for _, p := range cfg.Purposes {
			grants[p.Key] = p.Required
		}
		return grants
	})
}

// SavePreferences applies per-purpose choices. Only declared purposes enter
// the state: unknown keys are dropped, missing declared purposes default to
// refused, and required purposes are granted regardless of the choice.
func (e *Engine) SavePreferences(ctx context.Context, choices map[string]bool) error {
	return e.mutate(ctx, "save", func(cfg *site.Config) map[string]bool {
		grants := make(map[string]bool, len(cfg.Purposes))
		for _, p := range cfg.Purposes {
			grants[p.Key] = p.Required || choices[p.Key]
		}
		return grants
	})
}

// Withdraw clears the stored decision and returns the engine to its
// pre-consent posture without a page reload. Resources already delivered
// stay delivered; blocking is one-directional.
func (e *Engine) Withdraw(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg == nil {
		return dErrors.New(dErrors.CodeNotReady, "consent engine is not ready")
	}

	if err := e.storage.ClearState(ctx); err != nil {
		e.degradeStorage(ctx, "clear", err)
	}
	e.state = nil

	e.metrics.IncrementAction("withdraw")
	e.publishLocked(ctx, events.EventConsentWithdrawn)
	e.logger.InfoContext(ctx, "consent withdrawn", "site_id", e.siteID)
	return nil
}

// mutate runs one consent action to completion: build a fresh normalized
// state, persist it whole, replay, and announce. The previous state is
// superseded, never merged. Persistence failures degrade instead of
// rejecting the action.
func (e *Engine) mutate(ctx context.Context, action string, build func(cfg *site.Config) map[string]bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg == nil {
		return dErrors.New(dErrors.CodeNotReady, "consent engine is not ready")
	}

	state := consent.NewState(e.cfg.SiteID, build(e.cfg), e.language, e.clock())
	state.ApplyRequired(e.cfg)

	if err := e.storage.SaveState(ctx, state); err != nil {
		e.degradeStorage(ctx, "save", err)
	}
	e.state = state
	e.resolvedOnce = true

	out := e.rep.Run(e.cfg, e.state)
	e.recordReplay(out)

	e.metrics.IncrementAction(action)
	e.publishLocked(ctx, events.EventConsentChanged)
	e.logger.InfoContext(ctx, "consent updated",
		"site_id", e.siteID,
		"action", action,
		"delivered", out.Delivered,
		"blocked", out.Blocked,
	)
	return nil
}
