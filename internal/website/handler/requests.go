package handler

import (
	"encoding/json"

	dErrors "assent/pkg/domain-errors"
)

// UpsertWebsiteRequest carries a raw website document plus its serving flag.
// The document stays raw so the schema validator sees exactly what the client
// sent.
type UpsertWebsiteRequest struct {
	Active *bool           `json:"active,omitempty"`
	Config json.RawMessage `json:"config"`
}

func (r *UpsertWebsiteRequest) validate() error {
	if len(r.Config) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "config document is required")
	}
	return nil
}

// active defaults to true so a bare upsert goes live immediately.
func (r *UpsertWebsiteRequest) active() bool {
	if r.Active == nil {
		return true
	}
	return *r.Active
}
