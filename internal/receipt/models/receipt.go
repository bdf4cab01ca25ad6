// Package models defines consent receipts: the durable record that a visitor
// resolved consent on a site, kept for accountability and dedup.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/mssola/useragent"
)

// Action is the consent mutation that produced a receipt.
type Action string

const (
	ActionAcceptAll Action = "accept_all"
	ActionRejectAll Action = "reject_all"
	ActionSave      Action = "save_preferences"
	ActionWithdraw  Action = "withdraw"
)

// Valid reports whether the action is one of the known consent mutations.
func (a Action) Valid() bool {
	switch a {
	case ActionAcceptAll, ActionRejectAll, ActionSave, ActionWithdraw:
		return true
	}
	return false
}

// Receipt records one consent resolution. StateHash is a canonical-JSON
// digest of the consented state, so an identical re-submission hashes
// identically regardless of map ordering or whitespace.
type Receipt struct {
	ID            uuid.UUID       `json:"id"`
	SiteID        string          `json:"site_id"`
	VisitorID     string          `json:"visitor_id"`
	Action        Action          `json:"action"`
	Purposes      map[string]bool `json:"purposes"`
	Language      string          `json:"language,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	StateHash     string          `json:"state_hash"`
	UserAgent     string          `json:"user_agent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// hashedState is the subset of a receipt that identifies a consent state.
// Timestamps and IDs stay out so the same decision always hashes the same.
type hashedState struct {
	SiteID        string          `json:"site_id"`
	Action        Action          `json:"action"`
	Purposes      map[string]bool `json:"purposes"`
	Language      string          `json:"language"`
	SchemaVersion int             `json:"schema_version"`
}

// ComputeStateHash returns the hex SHA-256 of the RFC 8785 canonical JSON of
// the receipt's consent state.
func (r *Receipt) ComputeStateHash() (string, error) {
	raw, err := json.Marshal(hashedState{
		SiteID:        r.SiteID,
		Action:        r.Action,
		Purposes:      r.Purposes,
		Language:      r.Language,
		SchemaVersion: r.SchemaVersion,
	})
	if err != nil {
		return "", fmt.Errorf("marshal receipt state: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize receipt state: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SummarizeUserAgent reduces a raw User-Agent header to "browser/version
// (os)". Receipts keep the summary, never the raw header, to limit
// fingerprint surface in long-lived records.
func SummarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	summary := name
	if version != "" {
		summary += "/" + version
	}
	if os := ua.OS(); os != "" {
		summary += " (" + os + ")"
	}
	if ua.Mobile() {
		summary += " mobile"
	}
	return summary
}
