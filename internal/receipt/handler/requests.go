package handler

import (
	"strings"

	"assent/internal/receipt/models"
	dErrors "assent/pkg/domain-errors"
)

type submitReceiptRequest struct {
	SiteID        string          `json:"site_id"`
	VisitorID     string          `json:"visitor_id,omitempty"`
	Action        string          `json:"action"`
	Purposes      map[string]bool `json:"purposes,omitempty"`
	Language      string          `json:"language,omitempty"`
	SchemaVersion int             `json:"schema_version,omitempty"`
}

func (r *submitReceiptRequest) validate() error {
	if strings.TrimSpace(r.SiteID) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "site_id is required")
	}
	if !models.Action(r.Action).Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown consent action")
	}
	return nil
}

type listReceiptsResponse struct {
	Receipts []*models.Receipt `json:"receipts"`
	Count    int               `json:"count"`
}
