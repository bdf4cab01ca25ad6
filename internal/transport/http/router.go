// Package httptransport assembles the HTTP surface: the public runtime API
// loaders and banners call, the admin ingest surface, operational endpoints,
// and the optional gateway mount that fronts a customer site.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assent/internal/platform/metrics"
	"assent/internal/platform/middleware"
	receipthandler "assent/internal/receipt/handler"
	"assent/internal/transport/http/shared"
	websitehandler "assent/internal/website/handler"
	dErrors "assent/pkg/domain-errors"
)

// RouterOptions carry everything the router mounts. Website and Receipts are
// required; Gateway is mounted as the catch-all when present.
type RouterOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Website  *websitehandler.Handler
	Receipts *receipthandler.Handler

	// AdminValidator guards the admin group.
	AdminValidator middleware.AdminValidator

	// Gateway, when set, receives every request no other route claims: the
	// proxied site and the consent endpoints that must share its origin.
	Gateway http.Handler

	RequestTimeout  time.Duration
	PublicRateRPS   float64
	PublicRateBurst int
}

// NewRouter builds the chi router with the shared middleware chain. Route
// groups layer their own concerns: the public runtime group is rate limited,
// the admin group requires a bearer token, the gateway mount gets neither so
// page traffic is never throttled by API limits.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusMethodNotAllowed, shared.ErrorResponse{Error: "method_not_allowed"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public runtime group: config reads and receipt intake from browsers.
	r.Group(func(pub chi.Router) {
		if opts.PublicRateRPS > 0 {
			limiter := middleware.NewRateLimiter(opts.PublicRateRPS, opts.PublicRateBurst, logger)
			pub.Use(limiter.Middleware)
		}
		pub.Use(middleware.ContentTypeJSON)
		pub.Use(middleware.Latency(opts.Metrics, "public"))
		opts.Website.RegisterPublic(pub)
		opts.Receipts.RegisterPublic(pub)
	})

	// Admin ingest group.
	r.Group(func(adm chi.Router) {
		adm.Use(middleware.RequireAdmin(opts.AdminValidator, logger))
		adm.Use(middleware.ContentTypeJSON)
		adm.Use(middleware.Latency(opts.Metrics, "admin"))
		opts.Website.RegisterAdmin(adm)
		opts.Receipts.RegisterAdmin(adm)
	})

	if opts.Gateway != nil {
		r.Handle("/*", opts.Gateway)
	}

	return r
}
