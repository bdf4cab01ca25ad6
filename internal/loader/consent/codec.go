package consent

import (
	"encoding/json"
	"fmt"
)

// EncodeState serializes a state for storage.
func EncodeState(state *State) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("cannot encode nil state")
	}
	return json.Marshal(state)
}

// DecodeOwned decodes a stored blob and applies the trust checks every store
// shares: the stored website must match the current site (cross-tenant
// contamination guard) and the schema version must be the current one.
// Anything failing a check reads as absent, never as an error.
func DecodeOwned(data []byte, websiteID string) *State {
	if len(data) == 0 {
		return nil
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	if state.WebsiteID != websiteID {
		return nil
	}
	if state.SchemaVersion != SchemaVersion {
		return nil
	}
	return &state
}
