// Package store persists website documents. Implementations return
// sentinel.ErrNotFound for absent sites; active/inactive policy lives in the
// service layer, so stores surface inactive documents as-is.
package store

import (
	"context"

	"assent/internal/website/models"
)

// Store is the website document port.
type Store interface {
	// Upsert inserts or fully replaces the document for its site ID.
	Upsert(ctx context.Context, website *models.Website) error
	// FindBySiteID returns the document or sentinel.ErrNotFound.
	FindBySiteID(ctx context.Context, siteID string) (*models.Website, error)
	// SetActive flips the serving flag. Returns sentinel.ErrNotFound when the
	// site does not exist.
	SetActive(ctx context.Context, siteID string, active bool) error
}
