// Package gate decides whether a purpose-tagged resource may be delivered.
// The rules are pure domain logic - no I/O, no side effects. Every path that
// cannot prove consent denies.
package gate

import (
	"assent/internal/loader/consent"
	"assent/internal/site"
)

// Reason explains a verdict. Reasons feed logs and metrics, never control flow.
type Reason string

const (
	ReasonNoConfig       Reason = "no_config"
	ReasonUnknownPurpose Reason = "unknown_purpose"
	ReasonRequired       Reason = "required"
	ReasonGranted        Reason = "granted"
	ReasonNoDecision     Reason = "no_decision"
	ReasonDenied         Reason = "denied"
)

// Verdict is the outcome of gating a single purpose.
type Verdict struct {
	Allow  bool
	Reason Reason
}

// Evaluate applies the gating rule chain for one purpose.
// Rule priority (deny-fast):
//  1. No site configuration - nothing can be proven, deny.
//  2. Purpose not declared by the site - deny, regardless of stored choices.
//  3. Purpose declared required - allow, no opt-out exists.
//  4. No consent decision recorded yet - deny.
//  5. The visitor's stored choice.
func Evaluate(purpose string, cfg *site.Config, state *consent.State) Verdict {
	if cfg == nil {
		return Verdict{Reason: ReasonNoConfig}
	}

	p := cfg.Purpose(purpose)
	if p == nil {
		return Verdict{Reason: ReasonUnknownPurpose}
	}

	if p.Required {
		return Verdict{Allow: true, Reason: ReasonRequired}
	}

	if state == nil {
		return Verdict{Reason: ReasonNoDecision}
	}

	if state.Allows(purpose) {
		return Verdict{Allow: true, Reason: ReasonGranted}
	}
	return Verdict{Reason: ReasonDenied}
}

// Allowed reports whether a purpose may be delivered. See Evaluate for the
// rule chain.
func Allowed(purpose string, cfg *site.Config, state *consent.State) bool {
	return Evaluate(purpose, cfg, state).Allow
}
