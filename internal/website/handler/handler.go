// Package handler exposes the runtime-config endpoints: the public read path
// the loader fetches from, and the admin ingest surface.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"assent/internal/platform/middleware"
	"assent/internal/site"
	"assent/internal/transport/http/shared"
	"assent/internal/website/models"
	dErrors "assent/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the website operations the handler delegates to.
type Service interface {
	Get(ctx context.Context, siteID string) (*site.Config, error)
	Upsert(ctx context.Context, document json.RawMessage, active bool) (*models.Website, error)
	SetActive(ctx context.Context, siteID string, active bool) error
	PurgeCache(ctx context.Context, siteID string) error
}

// Handler handles runtime-config endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	cacheTTL time.Duration
}

// New creates a website Handler. cacheTTL drives the advisory Cache-Control
// header on the public read path.
func New(service Service, logger *slog.Logger, cacheTTL time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		cacheTTL: cacheTTL,
	}
}

// RegisterPublic registers the read path consumed by loaders.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/runtime/websites/{siteID}", h.handleGetConfig)
}

// RegisterAdmin registers the ingest surface. The router guards these routes
// with middleware.RequireAdmin.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/websites", h.handleUpsert)
	r.Post("/admin/websites/{siteID}/deactivate", h.handleDeactivate)
	r.Post("/admin/websites/{siteID}/reactivate", h.handleReactivate)
	r.Delete("/admin/websites/{siteID}/cache", h.handlePurgeCache)
}

// handleGetConfig serves the validated runtime config. The Cache-Control
// header is advisory only; loaders fetch per page load and fail closed on
// their own.
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := chi.URLParam(r, "siteID")

	cfg, err := h.service.Get(ctx, siteID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeSiteNotFound) && !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to serve runtime config",
				"request_id", middleware.GetRequestID(ctx),
				"site_id", siteID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	if h.cacheTTL > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.cacheTTL.Seconds())))
	}
	shared.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpsertWebsiteRequest
	if err := shared.ReadJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid website upsert request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	website, err := h.service.Upsert(ctx, req.Config, req.active())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to upsert website document",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, upsertWebsiteResponse{
		SiteID:    website.SiteID,
		Active:    website.Active,
		CreatedAt: website.CreatedAt,
		UpdatedAt: website.UpdatedAt,
	})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx := r.Context()
	siteID := chi.URLParam(r, "siteID")

	if err := h.service.SetActive(ctx, siteID, active); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePurgeCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := chi.URLParam(r, "siteID")

	if err := h.service.PurgeCache(ctx, siteID); err != nil {
		h.logger.WarnContext(ctx, "cache purge failed",
			"request_id", middleware.GetRequestID(ctx),
			"site_id", siteID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertWebsiteResponse struct {
	SiteID    string    `json:"site_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
