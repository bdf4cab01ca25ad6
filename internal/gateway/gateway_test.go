package gateway

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/internal/loader/consent"
	receiptmodels "assent/internal/receipt/models"
	"assent/internal/site"
	dErrors "assent/pkg/domain-errors"
)

const gatedPage = `<!DOCTYPE html>
<html>
<head>
  <title>Storefront</title>
  <script type="text/plain" data-consent="essential" data-src="https://cdn.example/core.js"></script>
  <script type="text/plain" data-consent="analytics" data-src="https://cdn.example/analytics.js"></script>
</head>
<body>
  <h1>Welcome</h1>
  <img data-consent="marketing" data-src="https://px.example/p.gif">
</body>
</html>`

func testConfig() *site.Config {
	return &site.Config{
		SiteID:             "site-1",
		DefaultLanguage:    "en",
		SupportedLanguages: []string{"en", "fr"},
		Notice: map[string]site.NoticeText{
			"en": {Title: "Privacy", Description: "We gate resources until you decide."},
		},
		Purposes: []site.Purpose{
			{Key: "essential", Required: true, Labels: map[string]site.PurposeText{"en": {Title: "Essential"}}},
			{Key: "analytics", Labels: map[string]site.PurposeText{"en": {Title: "Analytics"}}},
			{Key: "marketing", Labels: map[string]site.PurposeText{"en": {Title: "Marketing"}}},
		},
	}
}

// stubSource serves a fixed config or error.
type stubSource struct {
	mu  sync.Mutex
	cfg *site.Config
	err error
}

func (s *stubSource) Load(context.Context, string) (*site.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.cfg.Clone(), nil
}

// captureIntake records forwarded receipts.
type captureIntake struct {
	mu       sync.Mutex
	receipts []*receiptmodels.Receipt
	err      error
}

func (c *captureIntake) Emit(_ context.Context, receipt *receiptmodels.Receipt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.receipts = append(c.receipts, receipt)
	return nil
}

func (c *captureIntake) all() []*receiptmodels.Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*receiptmodels.Receipt(nil), c.receipts...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTime() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func testSealer(t *testing.T) *consent.Sealer {
	t.Helper()
	sealer, err := consent.NewSealer(bytes.Repeat([]byte{0x2a}, 32))
	require.NoError(t, err)
	return sealer
}

func newGateway(t *testing.T, upstream http.Handler, mutate func(*Options)) *Gateway {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	opts := Options{
		SiteID:   "site-1",
		Upstream: target,
		Source:   &stubSource{cfg: testConfig()},
		Sealer:   testSealer(t),
		Logger:   testLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	g, err := New(opts)
	require.NoError(t, err)
	return g
}

func htmlUpstream(page string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	})
}

func cookieNamed(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestNew_RequiresWiring(t *testing.T) {
	target, err := url.Parse("http://upstream.internal")
	require.NoError(t, err)
	source := &stubSource{cfg: testConfig()}
	sealer := testSealer(t)

	_, err = New(Options{Upstream: target, Source: source, Sealer: sealer})
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeValidation, "gateway site id is required"))

	_, err = New(Options{SiteID: "site-1", Source: source, Sealer: sealer})
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeValidation, "gateway upstream is required"))

	_, err = New(Options{SiteID: "site-1", Upstream: target, Sealer: sealer})
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeValidation, "gateway config source is required"))

	_, err = New(Options{SiteID: "site-1", Upstream: target, Source: source})
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeValidation, "gateway cookie sealer is required"))
}

func TestGateway_RewritesHTML(t *testing.T) {
	g := newGateway(t, htmlUpstream(gatedPage), nil)

	req := httptest.NewRequest(http.MethodGet, "/shop", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	// Required purpose is live, optional ones still inert placeholders.
	assert.Contains(t, body, `<script src="https://cdn.example/core.js">`)
	assert.Contains(t, body, `data-src="https://cdn.example/analytics.js"`)
	assert.NotContains(t, body, `<script src="https://cdn.example/analytics.js">`)
	assert.Contains(t, body, `data-src="https://px.example/p.gif"`)
	assert.NotContains(t, body, `src="https://px.example/p.gif"`)

	// Bootstrap runs before any page script.
	assert.Contains(t, body, "window.assent=")
	assert.Less(t, strings.Index(body, "window.assent="), strings.Index(body, "core.js"))

	assert.NotNil(t, cookieNamed(t, rec, VisitorCookie))
	lang := cookieNamed(t, rec, LanguageCookie)
	require.NotNil(t, lang)
	assert.Equal(t, "en", lang.Value)
}

func TestGateway_HonorsAcceptLanguage(t *testing.T) {
	g := newGateway(t, htmlUpstream(gatedPage), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "fr-CA, en;q=0.8")
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	lang := cookieNamed(t, rec, LanguageCookie)
	require.NotNil(t, lang)
	assert.Equal(t, "fr", lang.Value)
}

func TestGateway_PassthroughNonHTML(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}), nil)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "window.assent")
}

func TestGateway_PassthroughNon200(t *testing.T) {
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "<html><body>missing</body></html>")
	}), nil)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "<html><body>missing</body></html>", rec.Body.String())
}

func TestGateway_ConfigFailureServesInertPage(t *testing.T) {
	g := newGateway(t, htmlUpstream(gatedPage), func(opts *Options) {
		opts.Source = &stubSource{err: dErrors.New(dErrors.CodeConfigUnreachable, "config endpoint down")}
	})

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shop", nil))

	// The page ships exactly as the origin sent it: placeholders stay inert,
	// no bootstrap, nothing activated.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gatedPage, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "window.assent")
}

func TestGateway_TooLargePassesThrough(t *testing.T) {
	big := "<html><head></head><body>" + strings.Repeat("<p>filler</p>", 100) + "</body></html>"
	g := newGateway(t, htmlUpstream(big), func(opts *Options) {
		opts.MaxBodyBytes = 64
	})

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, big, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "window.assent")
}

func TestGateway_RestoresConsentFromCookie(t *testing.T) {
	g := newGateway(t, htmlUpstream(gatedPage), nil)

	// Accept everything through the consent endpoint first.
	acceptRec := httptest.NewRecorder()
	g.ServeHTTP(acceptRec, httptest.NewRequest(http.MethodPost, "/assent/consent/accept", nil))
	require.Equal(t, http.StatusOK, acceptRec.Code)
	sealed := cookieNamed(t, acceptRec, ConsentCookie)
	require.NotNil(t, sealed)

	// The next page load replays the stored decision: everything activates.
	req := httptest.NewRequest(http.MethodGet, "/shop", nil)
	req.AddCookie(&http.Cookie{Name: ConsentCookie, Value: sealed.Value})
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<script src="https://cdn.example/analytics.js">`)
	assert.Contains(t, body, `src="https://px.example/p.gif"`)
	assert.NotContains(t, body, `type="text/plain"`)
	assert.Contains(t, body, `"resolved":true`)
}

func TestGateway_UpstreamSeesNoGatewayCookies(t *testing.T) {
	var got struct {
		mu       sync.Mutex
		cookies  []*http.Cookie
		encoding string
	}
	g := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.mu.Lock()
		got.cookies = r.Cookies()
		got.encoding = r.Header.Get("Accept-Encoding")
		got.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok")
	}), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "abc123"})
	req.AddCookie(&http.Cookie{Name: ConsentCookie, Value: "sealed"})
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: "f3b9a1c0-0000-4000-8000-000000000000"})
	req.AddCookie(&http.Cookie{Name: LanguageCookie, Value: "en"})
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Len(t, got.cookies, 1)
	assert.Equal(t, "session", got.cookies[0].Name)
	assert.Equal(t, "abc123", got.cookies[0].Value)
	assert.Equal(t, "identity", got.encoding)
}

func TestGateway_ReusesVisitorCookie(t *testing.T) {
	g := newGateway(t, htmlUpstream(gatedPage), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: "f3b9a1c0-0000-4000-8000-000000000000"})
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Nil(t, cookieNamed(t, rec, VisitorCookie))
}

func TestGateway_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()

	g, err := New(Options{
		SiteID:   "site-1",
		Upstream: target,
		Source:   &stubSource{cfg: testConfig()},
		Sealer:   testSealer(t),
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestBootstrapScript_EscapesState(t *testing.T) {
	state := consent.NewState("site-1", map[string]bool{"</script><script>alert(1)": true}, "en", testTime())
	script := bootstrapScript(state, "en", true)

	assert.NotContains(t, script, "</script>")
	assert.Contains(t, script, `\u003c/script\u003e`)
}
