// Package gateway is the edge host: a reverse proxy that embeds the consent
// engine in front of a customer site. Every HTML page is parsed, gated
// resources are captured, the sealed consent cookie is replayed, and the
// re-serialized page ships with a bootstrap script page code integrates with.
// The consent action endpoints the banner calls live here too, on the same
// origin as the proxied site so the cookie round-trips.
package gateway

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"assent/internal/gateway/metrics"
	"assent/internal/loader"
	"assent/internal/loader/consent"
	"assent/internal/loader/dom"
	"assent/internal/loader/language"
	loadermetrics "assent/internal/loader/metrics"
	"assent/internal/loader/registry"
	receiptmodels "assent/internal/receipt/models"
	"assent/internal/transport/http/shared"
	dErrors "assent/pkg/domain-errors"
)

const defaultMaxBodyBytes = 4 << 20

// ReceiptIntake accepts consent receipts produced by the gateway. The receipt
// publisher satisfies it.
type ReceiptIntake interface {
	Emit(ctx context.Context, receipt *receiptmodels.Receipt) error
}

// Options configure the gateway host. SiteID, Upstream, Source, and Sealer
// are required.
type Options struct {
	// SiteID is the website all proxied traffic belongs to. One gateway
	// fronts one site.
	SiteID string
	// Upstream is the origin being fronted.
	Upstream *url.URL
	// Source loads the site's runtime configuration (site.Client in
	// production).
	Source loader.ConfigSource
	// Sealer protects the consent cookie.
	Sealer *consent.Sealer
	// Receipts, when set, receives a receipt for every consent action.
	Receipts ReceiptIntake

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// LoaderMetrics is shared by every per-request engine.
	LoaderMetrics *loadermetrics.Metrics

	// CookieSecure marks all gateway cookies Secure. On for anything
	// reachable over HTTPS.
	CookieSecure bool
	// MaxBodyBytes caps how much HTML is buffered for rewriting; larger
	// pages stream through untouched.
	MaxBodyBytes int64
	// UntaggedPolicy governs dynamically created elements without a purpose
	// tag, passed through to each engine.
	UntaggedPolicy registry.UntaggedPolicy
}

// Gateway proxies one site and runs a consent engine over its pages.
type Gateway struct {
	siteID        string
	upstream      *url.URL
	source        loader.ConfigSource
	sealer        *consent.Sealer
	receipts      ReceiptIntake
	logger        *slog.Logger
	metrics       *metrics.Metrics
	loaderMetrics *loadermetrics.Metrics
	secure        bool
	maxBody       int64
	untagged      registry.UntaggedPolicy
	proxy         *httputil.ReverseProxy
}

// New builds the gateway host.
func New(opts Options) (*Gateway, error) {
	if opts.SiteID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "gateway site id is required")
	}
	if opts.Upstream == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "gateway upstream is required")
	}
	if opts.Source == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "gateway config source is required")
	}
	if opts.Sealer == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "gateway cookie sealer is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	g := &Gateway{
		siteID:        opts.SiteID,
		upstream:      opts.Upstream,
		source:        opts.Source,
		sealer:        opts.Sealer,
		receipts:      opts.Receipts,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		loaderMetrics: opts.LoaderMetrics,
		secure:        opts.CookieSecure,
		maxBody:       opts.MaxBodyBytes,
		untagged:      opts.UntaggedPolicy,
	}
	g.proxy = &httputil.ReverseProxy{
		Rewrite:        g.rewriteRequest,
		ModifyResponse: g.rewriteResponse,
		ErrorHandler:   g.upstreamError,
	}
	return g, nil
}

// ServeHTTP routes between the consent endpoints the gateway owns and the
// proxied site. Every request leaves with a visitor id cookie.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r, _ = ensureVisitor(w, r, g.secure)
	if r.URL.Path == consentPath || strings.HasPrefix(r.URL.Path, consentPath+"/") {
		g.serveConsent(w, r)
		return
	}
	// The outbound clone loses the inbound request, but the response rewrite
	// needs its cookies and headers; carry it through the context.
	r = r.WithContext(context.WithValue(r.Context(), inboundKey{}, r))
	g.proxy.ServeHTTP(w, r)
}

// inboundKey carries the pre-proxy request to the response rewrite.
type inboundKey struct{}

// rewriteRequest points the outbound request at the upstream origin. Gateway
// cookies never leave: they are state between browser and gateway, not part
// of the site's traffic. Compression is declined so the rewrite sees plain
// HTML.
func (g *Gateway) rewriteRequest(pr *httputil.ProxyRequest) {
	pr.SetURL(g.upstream)
	pr.SetXForwarded()
	pr.Out.Header.Set("Accept-Encoding", "identity")
	stripGatewayCookies(pr.Out)
}

func stripGatewayCookies(r *http.Request) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, ck := range cookies {
		switch ck.Name {
		case ConsentCookie, LanguageCookie, VisitorCookie:
			continue
		}
		r.AddCookie(ck)
	}
}

// rewriteResponse runs the consent engine over HTML responses. Anything that
// is not a 200 HTML page under the size cap passes through byte for byte. On
// configuration failure the original page is served unchanged: gated markup
// is inert by construction, so blocking holds without the engine.
func (g *Gateway) rewriteResponse(resp *http.Response) error {
	start := time.Now()

	if reason, ok := g.passthroughReason(resp); !ok {
		g.metrics.IncrementPassthrough(reason)
		return nil
	}

	in, _ := resp.Request.Context().Value(inboundKey{}).(*http.Request)
	if in == nil {
		g.metrics.IncrementPassthrough("no_inbound")
		return nil
	}
	ctx := in.Context()

	upstream := resp.Body
	buf, err := io.ReadAll(io.LimitReader(upstream, g.maxBody+1))
	if err != nil {
		upstream.Close()
		return err
	}
	if int64(len(buf)) > g.maxBody {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(buf), upstream), upstream}
		g.metrics.IncrementPassthrough("too_large")
		g.logger.WarnContext(ctx, "page exceeds rewrite cap, served without consent gating",
			"path", in.URL.Path, "cap_bytes", g.maxBody)
		return nil
	}
	upstream.Close()

	doc, err := dom.ParseDocument(bytes.NewReader(buf))
	if err != nil {
		g.metrics.IncrementPassthrough("parse_failed")
		return g.serveRaw(resp, buf)
	}

	storage := newCookieStorage(headerWriter{resp.Header}, in, g.sealer, g.secure)
	eng, err := loader.New(loader.Options{
		SiteID:         g.siteID,
		Source:         g.source,
		Storage:        storage,
		Document:       doc,
		Logger:         g.logger,
		Metrics:        g.loaderMetrics,
		BrowserLocale:  language.FromAcceptLanguage(in.Header.Get("Accept-Language")),
		UntaggedPolicy: g.untagged,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Boot(ctx); err != nil {
		g.metrics.IncrementRewritten("config_failed")
		return g.serveRaw(resp, buf)
	}

	doc.InjectHeadScript(bootstrapScript(eng.Consent(), eng.Language(), true))

	var out bytes.Buffer
	out.Grow(len(buf) + 2048)
	if err := doc.Render(&out); err != nil {
		return err
	}
	g.setBody(resp, out.Bytes())
	// The body changed; an upstream validator would revalidate to the wrong
	// bytes.
	resp.Header.Del("Etag")

	g.metrics.IncrementRewritten("ready")
	g.metrics.ObserveRewrite(start)
	return nil
}

// passthroughReason reports whether a response should skip the rewrite and
// why. ok means rewrite.
func (g *Gateway) passthroughReason(resp *http.Response) (reason string, ok bool) {
	if resp.StatusCode != http.StatusOK {
		return "status", false
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		// Upstream compressed despite Accept-Encoding: identity.
		return "encoded", false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/html" {
		return "not_html", false
	}
	return "", true
}

func (g *Gateway) serveRaw(resp *http.Response, buf []byte) error {
	g.setBody(resp, buf)
	return nil
}

func (g *Gateway) setBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

func (g *Gateway) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.ErrorContext(r.Context(), "upstream request failed",
		"path", r.URL.Path, "error", err)
	shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "upstream unavailable"))
}

// readCloser pairs a replay reader with the original body's closer.
type readCloser struct {
	io.Reader
	io.Closer
}

// headerWriter adapts a bare header map to http.ResponseWriter so
// http.SetCookie can target an in-flight *http.Response.
type headerWriter struct{ header http.Header }

func (h headerWriter) Header() http.Header         { return h.header }
func (h headerWriter) Write(b []byte) (int, error) { return len(b), nil }
func (h headerWriter) WriteHeader(int)             {}
