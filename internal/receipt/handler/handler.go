// Package handler exposes receipt intake and the admin read surface.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Intake,Reader

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"assent/internal/receipt/models"
	"assent/internal/receipt/publisher"
	"assent/internal/transport/http/shared"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/requestcontext"
)

// Intake accepts receipts for recording, usually asynchronously.
type Intake interface {
	Emit(ctx context.Context, receipt *models.Receipt) error
}

// Reader serves recorded receipts to the admin surface.
type Reader interface {
	ListBySite(ctx context.Context, siteID string, limit int) ([]*models.Receipt, error)
}

type Handler struct {
	intake Intake
	reader Reader
	logger *slog.Logger
}

func New(intake Intake, reader Reader, logger *slog.Logger) *Handler {
	return &Handler{intake: intake, reader: reader, logger: logger}
}

// RegisterPublic mounts the intake endpoint pages post to.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/runtime/receipts", h.submit)
}

// RegisterAdmin mounts the receipt read surface behind admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/websites/{siteID}/receipts", h.list)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitReceiptRequest
	if err := shared.ReadJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	// The gateway puts the visitor cookie in context; direct API callers
	// carry the ID in the body instead.
	visitorID := strings.TrimSpace(req.VisitorID)
	if visitorID == "" {
		visitorID = requestcontext.VisitorID(r.Context())
	}
	if visitorID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "visitor_id is required"))
		return
	}

	receipt := &models.Receipt{
		SiteID:        strings.TrimSpace(req.SiteID),
		VisitorID:     visitorID,
		Action:        models.Action(req.Action),
		Purposes:      req.Purposes,
		Language:      strings.ToLower(strings.TrimSpace(req.Language)),
		SchemaVersion: req.SchemaVersion,
		UserAgent:     models.SummarizeUserAgent(requestcontext.UserAgent(r.Context())),
		CreatedAt:     requestcontext.Now(r.Context()),
	}

	if err := h.intake.Emit(r.Context(), receipt); err != nil {
		if errors.Is(err, publisher.ErrBufferFull) {
			// Shed quietly. The drop is already counted and the page cannot
			// usefully retry a consent receipt.
			shared.WriteJSON(w, http.StatusNoContent, nil)
			return
		}
		h.logger.WarnContext(r.Context(), "receipt intake failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"site_id", receipt.SiteID,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	receipts, err := h.reader.ListBySite(r.Context(), siteID, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if receipts == nil {
		receipts = []*models.Receipt{}
	}
	shared.WriteJSON(w, http.StatusOK, listReceiptsResponse{Receipts: receipts, Count: len(receipts)})
}
