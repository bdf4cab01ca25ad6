package store

import (
	"context"
	"time"

	"assent/internal/receipt/models"
)

// Store persists consent receipts.
//
// Implementations return sentinel errors from pkg/platform/sentinel; the
// service layer translates them into coded domain errors.
type Store interface {
	// Append inserts a receipt. Receipts are immutable once written.
	Append(ctx context.Context, receipt *models.Receipt) error

	// HasRecent reports whether the visitor already has a receipt with the
	// given state hash created at or after since.
	HasRecent(ctx context.Context, visitorID, stateHash string, since time.Time) (bool, error)

	// ListBySite returns the newest receipts for a site, newest first,
	// capped at limit.
	ListBySite(ctx context.Context, siteID string, limit int) ([]*models.Receipt, error)

	// DeleteOlderThan removes receipts created before cutoff and returns
	// how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
