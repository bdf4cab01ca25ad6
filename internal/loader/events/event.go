// Package events carries consent lifecycle notifications to page scripts and
// host integrations that prefer eventing over polling the control surface.
package events

import (
	"context"
	"time"

	"assent/internal/loader/consent"
)

// EventType identifies the kind of consent event being published.
type EventType string

const (
	// EventConsentResolved fires when a prior decision is reloaded at boot.
	EventConsentResolved EventType = "consent.resolved"
	// EventConsentChanged fires on every accepted mutation (accept all,
	// reject all, save preferences).
	EventConsentChanged EventType = "consent.changed"
	// EventConsentWithdrawn fires when the visitor withdraws consent and
	// the engine returns to its pre-consent posture.
	EventConsentWithdrawn EventType = "consent.withdrawn"
	// EventSettingsRequested fires when the settings surface is opened.
	EventSettingsRequested EventType = "settings.requested"
	// EventConfigFailed fires when the site configuration cannot be loaded
	// and the engine locks into its fail-closed posture.
	EventConfigFailed EventType = "config.failed"
)

// Event is the envelope published on the bus. State is the publisher's
// defensive copy of the consent state at publish time (nil after withdrawal
// and on config failure); handlers share it read-only.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SiteID    string         `json:"site_id,omitempty"`
	Language  string         `json:"language,omitempty"`
	State     *consent.State `json:"state,omitempty"`
}

// EventHandler consumes published events. Handlers run on their own
// goroutines and must not mutate the event's state.
type EventHandler func(ctx context.Context, event Event)
