// Package loader implements the consent engine for one page load: it fetches
// the site configuration, resolves the working language, captures gated
// resources, and delivers each at most once when consent allows.
//
// One Engine exists per page. A mutex serializes operations so each runs to
// completion, standing in for the host page's event loop; the configuration
// fetch is the only asynchronous boundary.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"assent/internal/loader/consent"
	"assent/internal/loader/dom"
	"assent/internal/loader/events"
	"assent/internal/loader/gate"
	"assent/internal/loader/language"
	"assent/internal/loader/metrics"
	"assent/internal/loader/registry"
	"assent/internal/loader/replay"
	"assent/internal/platform/tracer"
	"assent/internal/site"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// ConfigSource loads the runtime configuration for a site. site.Client is
// the production source; tests substitute stubs.
type ConfigSource interface {
	Load(ctx context.Context, siteID string) (*site.Config, error)
}

// Options configure one engine. SiteID and Source are required; everything
// else has a working default.
type Options struct {
	SiteID string
	Source ConfigSource

	// Storage persists consent across page loads. Defaults to an in-memory
	// store scoped to this engine.
	Storage consent.Storage

	// Document is the page the engine gates. Defaults to an empty page,
	// which hosts running the engine without HTML (consent action
	// endpoints) use.
	Document *dom.Document

	// Bus receives consent lifecycle events. When nil the engine owns a
	// private bus and drains it on Close.
	Bus *events.Bus

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Clock stamps consent states and events. Defaults to time.Now.
	Clock func() time.Time

	// BrowserLocale is the visitor's preferred locale as a single BCP 47
	// tag ("fr-FR"). Hosts derive it from Accept-Language.
	BrowserLocale string

	// UntaggedPolicy governs dynamically created elements without a purpose
	// tag. Defaults to allowing them only after consent has been resolved.
	UntaggedPolicy registry.UntaggedPolicy
}

// Engine gates one page load. All exported methods are safe for concurrent
// use; none panic on misuse before Boot.
type Engine struct {
	mu sync.RWMutex

	siteID        string
	source        ConfigSource
	storage       consent.Storage
	doc           *dom.Document
	reg           *registry.Registry
	icp           *registry.Interceptor
	rep           *replay.Engine
	bus           *events.Bus
	busOwned      bool
	logger        *slog.Logger
	metrics       *metrics.Metrics
	clock         func() time.Time
	browserLocale string

	booted   bool
	cfg      *site.Config // nil until Boot succeeds, nil forever after config failure
	state    *consent.State
	language string

	// resolvedOnce latches when consent is first resolved and survives
	// withdrawal: the untagged pass-through policy keys on "resolved at
	// least once this session", not on the current posture.
	resolvedOnce bool

	storageDegraded bool
}

func New(opts Options) (*Engine, error) {
	if opts.SiteID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "site id is required")
	}
	if opts.Source == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "config source is required")
	}
	if opts.Storage == nil {
		opts.Storage = consent.NewMemoryStore()
	}
	if opts.Document == nil {
		opts.Document = dom.NewDocument()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	busOwned := opts.Bus == nil
	if busOwned {
		opts.Bus = events.NewBus(opts.Logger)
	}

	e := &Engine{
		siteID:        opts.SiteID,
		source:        opts.Source,
		storage:       opts.Storage,
		doc:           opts.Document,
		reg:           registry.New(),
		bus:           opts.Bus,
		busOwned:      busOwned,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		browserLocale: opts.BrowserLocale,
	}
	e.rep = replay.New(e.reg, opts.Logger)
	e.icp = registry.NewInterceptor(opts.Document, e.reg, registry.InterceptorOptions{
		Policy:   opts.UntaggedPolicy,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Allow:    e.allowPurpose,
		Resolved: e.hasResolvedOnce,
	})
	return e, nil
}

// Boot runs the start-up sequence: fetch and validate the configuration,
// resolve the working language, scan the document exactly once, install the
// interceptor, reload any prior decision, and replay what is already
// allowed. On configuration failure the engine still scans and intercepts
// but stays in its blocking posture for the rest of the page load; there is
// no retry and every captured resource stays undelivered.
func (e *Engine) Boot(ctx context.Context) error {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "loader.Boot")
	span.SetAttributes(attribute.String("site.id", e.siteID))
	defer span.End()

	e.mu.Lock()
	if e.booted {
		e.mu.Unlock()
		return fmt.Errorf("engine already booted: %w", sentinel.ErrInvalidState)
	}
	e.booted = true
	e.mu.Unlock()

	// The only async boundary: the engine stays responsive while the
	// configuration is on the wire.
	cfg, err := e.source.Load(ctx, e.siteID)

	e.mu.Lock()
	defer e.mu.Unlock()

	scanned := e.reg.ScanDocument(e.doc)
	e.recordScan(scanned)
	if ierr := e.icp.Install(); ierr != nil {
		return ierr
	}

	if err != nil {
		e.metrics.IncrementBoot("config_failed")
		e.metrics.ObserveBootLatency(time.Since(start))
		e.logger.ErrorContext(ctx, "configuration load failed, engine stays blocking",
			"site_id", e.siteID,
			"code", string(dErrors.CodeOf(err)),
			"resources", scanned,
			"error", err,
		)
		e.bus.Publish(ctx, events.Event{
			Type:      events.EventConfigFailed,
			Timestamp: e.clock(),
			SiteID:    e.siteID,
		})
		tracer.RecordError(span, err)
		return err
	}

	e.cfg = cfg

	stored, lerr := e.storage.LoadLanguage(ctx)
	if lerr != nil {
		e.degradeStorage(ctx, "language", lerr)
	}
	lang, persist := language.Resolve(cfg, stored, e.browserLocale)
	e.language = lang
	if persist {
		if serr := e.storage.SaveLanguage(ctx, lang); serr != nil {
			e.degradeStorage(ctx, "language", serr)
		}
	}

	prior, perr := e.storage.LoadState(ctx, cfg.SiteID)
	if perr != nil {
		e.degradeStorage(ctx, "load", perr)
	}
	if prior != nil {
		prior.ApplyRequired(cfg)
		e.state = prior
		e.resolvedOnce = true
	}

	// One pass regardless of a prior decision: required purposes deliver
	// immediately, everything else waits for consent.
	e.recordReplay(e.rep.Run(e.cfg, e.state))

	if e.state != nil {
		e.publishLocked(ctx, events.EventConsentResolved)
	}

	e.metrics.IncrementBoot("ready")
	e.metrics.ObserveBootLatency(time.Since(start))
	e.logger.InfoContext(ctx, "engine ready",
		"site_id", cfg.SiteID,
		"language", lang,
		"resources", scanned,
		"resolved", e.state != nil,
	)
	return nil
}

// Close uninstalls the interceptor and, when the engine owns its bus, drains
// in-flight event handlers.
func (e *Engine) Close() {
	e.icp.Uninstall()
	if e.busOwned {
		e.bus.Close()
	}
}

func (e *Engine) allowPurpose(purpose string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return gate.Allowed(purpose, e.cfg, e.state)
}

func (e *Engine) hasResolvedOnce() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolvedOnce
}

// degradeStorage records a persistence failure and keeps going: a denied
// store means decisions hold in memory for this page view only. The first
// failure warns, the rest are debug noise.
func (e *Engine) degradeStorage(ctx context.Context, op string, err error) {
	e.metrics.IncrementStorageDegradation(op)
	if !e.storageDegraded {
		e.storageDegraded = true
		e.logger.WarnContext(ctx, "consent storage degraded, decisions hold for this page view only",
			"op", op, "error", err)
		return
	}
	e.logger.DebugContext(ctx, "consent storage still degraded", "op", op, "error", err)
}

func (e *Engine) recordScan(scanned int) {
	if scanned == 0 {
		return
	}
	counts := make(map[registry.Kind]int)
	for _, res := range e.reg.Snapshot() {
		counts[res.Kind]++
	}
	for kind, n := range counts {
		e.metrics.AddRegistered(string(kind), n)
	}
}

func (e *Engine) recordReplay(out replay.Outcome) {
	for kind, n := range out.DeliveredByKind {
		e.metrics.AddDelivered(string(kind), n)
	}
}

// publishLocked emits an event carrying a defensive copy of the current
// state. Callers hold e.mu.
func (e *Engine) publishLocked(ctx context.Context, typ events.EventType) {
	e.bus.Publish(ctx, events.Event{
		Type:      typ,
		Timestamp: e.clock(),
		SiteID:    e.siteID,
		Language:  e.language,
		State:     e.state.Clone(),
	})
}
