package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"assent/internal/receipt/models"
)

// InMemory keeps receipts in a slice guarded by a mutex. Suitable for tests
// and single-process deployments.
type InMemory struct {
	mu       sync.RWMutex
	receipts []*models.Receipt
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, receipt *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receipts = append(s.receipts, cloneReceipt(receipt))
	return nil
}

func (s *InMemory) HasRecent(_ context.Context, visitorID, stateHash string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.receipts {
		if r.VisitorID == visitorID && r.StateHash == stateHash && !r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) ListBySite(_ context.Context, siteID string, limit int) ([]*models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Receipt
	for _, r := range s.receipts {
		if r.SiteID == siteID {
			out = append(out, cloneReceipt(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.receipts[:0]
	var deleted int64
	for _, r := range s.receipts {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.receipts = kept
	return deleted, nil
}

func cloneReceipt(r *models.Receipt) *models.Receipt {
	cp := *r
	if r.Purposes != nil {
		cp.Purposes = make(map[string]bool, len(r.Purposes))
		for k, v := range r.Purposes {
			cp.Purposes[k] = v
		}
	}
	return &cp
}
