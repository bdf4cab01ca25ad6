package store

import (
	"context"
	"sync"

	"assent/internal/website/models"
	"assent/pkg/platform/sentinel"
)

// InMemory is the development and test store.
type InMemory struct {
	mu       sync.RWMutex
	websites map[string]*models.Website
}

func NewInMemory() *InMemory {
	return &InMemory{websites: make(map[string]*models.Website)}
}

func (s *InMemory) Upsert(_ context.Context, website *models.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := website.Clone()
	if existing, ok := s.websites[website.SiteID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.websites[website.SiteID] = stored
	return nil
}

func (s *InMemory) FindBySiteID(_ context.Context, siteID string) (*models.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	website, ok := s.websites[siteID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return website.Clone(), nil
}

func (s *InMemory) SetActive(_ context.Context, siteID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	website, ok := s.websites[siteID]
	if !ok {
		return sentinel.ErrNotFound
	}
	website.Active = active
	return nil
}
