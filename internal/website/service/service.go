// Package service orchestrates website document ingest and serving.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"assent/internal/site"
	websitemetrics "assent/internal/website/metrics"
	"assent/internal/website/models"
	"assent/internal/website/schema"
	"assent/internal/website/store"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
	platformstrings "assent/pkg/platform/strings"
	"assent/pkg/requestcontext"
)

// CachePurger drops a cached config entry. The Redis decorator implements it;
// deployments without a cache run without one.
type CachePurger interface {
	Purge(ctx context.Context, siteID string) error
}

// Service serves validated runtime configs and ingests website documents.
type Service struct {
	store   store.Store
	schema  *schema.Validator
	cache   CachePurger
	logger  *slog.Logger
	metrics *websitemetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *websitemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCachePurger wires the cache invalidation surface exposed to admins.
func WithCachePurger(p CachePurger) Option {
	return func(s *Service) { s.cache = p }
}

// New creates the website service.
func New(st store.Store, validator *schema.Validator, opts ...Option) *Service {
	s := &Service{
		store:  st,
		schema: validator,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the validated runtime config for an active site. Absent and
// inactive sites are indistinguishable to callers.
func (s *Service) Get(ctx context.Context, siteID string) (*site.Config, error) {
	start := time.Now()
	defer s.metrics.ObserveServe(start)

	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "site id is required")
	}

	website, err := s.store.FindBySiteID(ctx, siteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementServed("not_found")
			return nil, dErrors.New(dErrors.CodeSiteNotFound, "site absent or inactive")
		}
		s.metrics.IncrementServed("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load website document")
	}
	if !website.Active {
		s.metrics.IncrementServed("not_found")
		return nil, dErrors.New(dErrors.CodeSiteNotFound, "site absent or inactive")
	}

	// Re-validate before serving: a document that predates a contract change
	// must never reach a page half-valid.
	cfg := website.Config
	if err := site.Validate(&cfg); err != nil {
		s.metrics.IncrementServed("invalid")
		s.logger.ErrorContext(ctx, "stored website document failed validation",
			"request_id", requestcontext.RequestID(ctx),
			"site_id", siteID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored config failed validation")
	}

	s.metrics.IncrementServed("ok")
	return &cfg, nil
}

// Upsert validates and stores a website document. The raw document is
// schema-checked before it is decoded, then normalized and contract-checked
// the same way the serving path validates.
func (s *Service) Upsert(ctx context.Context, document json.RawMessage, active bool) (*models.Website, error) {
	if err := s.schema.Validate(document); err != nil {
		return nil, err
	}

	var cfg site.Config
	if err := json.Unmarshal(document, &cfg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "decode website document")
	}

	cfg.SupportedLanguages = platformstrings.DedupeAndTrimLower(cfg.SupportedLanguages)
	cfg.DefaultLanguage = strings.ToLower(strings.TrimSpace(cfg.DefaultLanguage))
	site.Normalize(&cfg)
	if err := site.Validate(&cfg); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	website := &models.Website{
		SiteID:    cfg.SiteID,
		Config:    cfg,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Upsert(ctx, website); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store website document")
	}

	s.metrics.IncrementUpserts()
	s.logger.InfoContext(ctx, "website document upserted",
		"request_id", requestcontext.RequestID(ctx),
		"site_id", cfg.SiteID,
		"purposes", len(cfg.Purposes),
		"active", active,
	)
	return website, nil
}

// SetActive flips the serving flag without touching the document.
func (s *Service) SetActive(ctx context.Context, siteID string, active bool) error {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "site id is required")
	}
	if err := s.store.SetActive(ctx, siteID, active); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeSiteNotFound, "site absent or inactive")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "update website document")
	}
	return nil
}

// PurgeCache drops the cached config for a site. A no-op when no cache layer
// is configured.
func (s *Service) PurgeCache(ctx context.Context, siteID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Purge(ctx, siteID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "purge config cache")
	}
	return nil
}
