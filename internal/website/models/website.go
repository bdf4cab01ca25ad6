// Package models defines the website document: one stored runtime
// configuration plus its lifecycle state.
package models

import (
	"time"

	"assent/internal/site"
)

// Website is a runtime-config document for one customer site. The config is
// stored as authored; ordering and validation happen at ingest and again
// before serving so a document that went stale behind a schema change can
// never reach a page.
type Website struct {
	SiteID    string
	Config    site.Config
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so store callers never alias stored maps.
func (w *Website) Clone() *Website {
	if w == nil {
		return nil
	}
	out := *w
	out.Config = *w.Config.Clone()
	return &out
}
