// Package consent owns the durable per-visitor consent record and the storage
// ports that persist it. The State is the single source of truth for "is this
// purpose allowed"; it is superseded whole by every consent action, never
// merged.
package consent

import (
	"time"

	"assent/internal/site"
)

// SchemaVersion marks the serialized state layout. A stored state with a
// different version reads as absent: states are superseded, never migrated
// in place.
const SchemaVersion = 1

// State is the durable record of a visitor's per-purpose decisions.
type State struct {
	Purposes      map[string]bool `json:"purposes"`
	Language      string          `json:"language"`
	WebsiteID     string          `json:"website_id"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion int             `json:"schema_version"`
}

// NewState builds a fresh state for one consent action. Choices are copied;
// the caller's map is not retained.
func NewState(websiteID string, choices map[string]bool, language string, now time.Time) *State {
	purposes := make(map[string]bool, len(choices))
	for key, allowed := range choices {
		purposes[key] = allowed
	}
	return &State{
		Purposes:      purposes,
		Language:      language,
		WebsiteID:     websiteID,
		Timestamp:     now,
		SchemaVersion: SchemaVersion,
	}
}

// ApplyRequired forces every required purpose to true and guarantees every
// declared purpose has an entry. Runs on every build and reload so stored
// bits can never disable a required purpose.
func (s *State) ApplyRequired(cfg *site.Config) {
	if s == nil || cfg == nil {
		return
	}
	if s.Purposes == nil {
		s.Purposes = make(map[string]bool, len(cfg.Purposes))
	}
	for _, p := range cfg.Purposes {
		if p.Required {
			s.Purposes[p.Key] = true
			continue
		}
		if _, ok := s.Purposes[p.Key]; !ok {
			s.Purposes[p.Key] = false
		}
	}
}

// Allows reports the stored bit for a purpose. Unknown keys read as false.
func (s *State) Allows(purpose string) bool {
	if s == nil {
		return false
	}
	return s.Purposes[purpose]
}

// Clone returns a defensive copy. The control surface hands clones to page
// scripts so they cannot reach into the engine's state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Purposes = make(map[string]bool, len(s.Purposes))
	for key, allowed := range s.Purposes {
		out.Purposes[key] = allowed
	}
	return &out
}
