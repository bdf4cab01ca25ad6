package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/internal/admintoken"
	receipthandler "assent/internal/receipt/handler"
	receiptmodels "assent/internal/receipt/models"
	receiptpublisher "assent/internal/receipt/publisher"
	receiptservice "assent/internal/receipt/service"
	receiptstore "assent/internal/receipt/store"
	websitehandler "assent/internal/website/handler"
	"assent/internal/website/schema"
	"assent/internal/website/service"
	websitestore "assent/internal/website/store"
)

const routerDocument = `{
	"site_id": "site-1",
	"default_language": "en",
	"supported_languages": ["en"],
	"notice": {"en": {"title": "Privacy", "description": "We gate resources until you decide."}},
	"purposes": [
		{"key": "essential", "required": true, "labels": {"en": {"title": "Essential"}}},
		{"key": "analytics", "labels": {"en": {"title": "Analytics"}}}
	],
	"banner": {"text": {"en": {"headline": "Privacy", "description": "Choose.", "accept_button": "Accept", "reject_button": "Reject", "preferences_button": "Preferences"}}}
}`

type routerFixture struct {
	router   http.Handler
	tokens   *admintoken.Service
	receipts receiptstore.Store
}

func newRouterFixture(t *testing.T, mutate func(*RouterOptions)) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	websites := websitestore.NewInMemory()
	validator, err := schema.NewValidator()
	require.NoError(t, err)
	sites := service.New(websites, validator, service.WithLogger(logger))
	siteHandler := websitehandler.New(sites, logger, time.Minute)

	receipts := receiptstore.NewInMemory()
	recorder := receiptservice.New(receipts, time.Minute, 30*24*time.Hour, receiptservice.WithLogger(logger))
	intake := receiptpublisher.NewPublisher(recorder, receiptpublisher.WithLogger(logger))
	t.Cleanup(intake.Close)
	receiptHandler := receipthandler.New(intake, recorder, logger)

	tokens := admintoken.New("router-test-signing-key", "assent", time.Hour)

	opts := RouterOptions{
		Logger:         logger,
		Website:        siteHandler,
		Receipts:       receiptHandler,
		AdminValidator: tokens,
		RequestTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &routerFixture{
		router:   NewRouter(opts),
		tokens:   tokens,
		receipts: receipts,
	}
}

func (f *routerFixture) adminToken(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.Mint("ops@example.test", "admin")
	require.NoError(t, err)
	return token
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_PublicConfigRoundTrip(t *testing.T) {
	f := newRouterFixture(t, nil)

	// Ingest through the admin surface, then read through the public one.
	req := httptest.NewRequest(http.MethodPost, "/admin/websites", strings.NewReader(`{"config": `+routerDocument+`}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.adminToken(t))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runtime/websites/site-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"site_id":"site-1"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/websites", strings.NewReader(`{"config": `+routerDocument+`}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/websites", strings.NewReader(`{"config": `+routerDocument+`}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ReceiptIntake(t *testing.T) {
	f := newRouterFixture(t, nil)

	body := `{"site_id":"site-1","visitor_id":"visitor-9","action":"accept_all","purposes":{"analytics":true}}`
	req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := f.receipts.ListBySite(context.Background(), "site-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, receiptmodels.ActionAcceptAll, stored[0].Action)
}

func TestRouter_UnknownRouteEnvelope(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "not_found", envelope["error"])
}

func TestRouter_GatewayCatchAll(t *testing.T) {
	gw := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>proxied "+r.URL.Path+"</body></html>")
	})
	f := newRouterFixture(t, func(opts *RouterOptions) {
		opts.Gateway = gw
	})

	// API routes still win over the catch-all.
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shop/cart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "proxied /shop/cart")
}

func TestRouter_RejectsWrongContentType(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader("site_id=site-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_RateLimitsPublic(t *testing.T) {
	f := newRouterFixture(t, func(opts *RouterOptions) {
		opts.PublicRateRPS = 1
		opts.PublicRateBurst = 1
	})

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runtime/websites/site-1", nil)
	req.RemoteAddr = "198.51.100.7:4411"
	f.router.ServeHTTP(first, req)
	// Burst spent; the immediate second request from the same IP is shed.
	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/runtime/websites/site-1", nil)
	req.RemoteAddr = "198.51.100.7:4411"
	f.router.ServeHTTP(second, req)

	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
