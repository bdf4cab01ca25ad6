package gateway

import (
	"context"
	"net/http"

	"assent/internal/loader"
	"assent/internal/loader/consent"
	"assent/internal/loader/events"
	"assent/internal/loader/language"
	receiptmodels "assent/internal/receipt/models"
	"assent/internal/transport/http/shared"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/requestcontext"
)

// consentPath is the root of the endpoints the injected bootstrap calls.
// They live on the proxied site's origin so the sealed cookie round-trips
// without CORS.
const consentPath = "/assent/consent"

type saveRequest struct {
	Purposes map[string]bool `json:"purposes"`
}

func (g *Gateway) serveConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == consentPath {
		g.readConsent(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		shared.WriteJSON(w, http.StatusMethodNotAllowed, shared.ErrorResponse{Error: "method_not_allowed"})
		return
	}
	switch r.URL.Path {
	case consentPath + "/accept":
		g.consentAction(w, r, receiptmodels.ActionAcceptAll, nil)
	case consentPath + "/reject":
		g.consentAction(w, r, receiptmodels.ActionRejectAll, nil)
	case consentPath + "/save":
		var body saveRequest
		if err := shared.ReadJSON(r, &body); err != nil {
			shared.WriteError(w, err)
			return
		}
		g.consentAction(w, r, receiptmodels.ActionSave, body.Purposes)
	case consentPath + "/withdraw":
		g.consentAction(w, r, receiptmodels.ActionWithdraw, nil)
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown consent endpoint"))
	}
}

// readConsent reports the current decision without changing anything. The
// banner calls it on settings open to pre-fill toggles.
func (g *Gateway) readConsent(w http.ResponseWriter, r *http.Request) {
	g.metrics.IncrementConsentRequest("read")

	eng, err := g.newActionEngine(w, r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	defer eng.Close()

	if err := eng.Boot(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newStateView(eng.Consent(), eng.Language()))
}

// consentAction runs one consent mutation through a documentless engine: boot
// restores the prior cookie state, the action builds and seals the new one,
// and the response carries the resulting view. The engine publishes the
// change on its bus, where the receipt forwarder picks it up.
func (g *Gateway) consentAction(w http.ResponseWriter, r *http.Request, action receiptmodels.Action, choices map[string]bool) {
	g.metrics.IncrementConsentRequest(string(action))

	eng, err := g.newActionEngine(w, r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Close drains the bus, so the forwarder has run before the handler
	// returns.
	defer eng.Close()

	eventType := events.EventConsentChanged
	if action == receiptmodels.ActionWithdraw {
		eventType = events.EventConsentWithdrawn
	}
	unsubscribe := eng.Subscribe(eventType, g.forwardReceipt(action, r.UserAgent()))
	defer unsubscribe()

	if err := eng.Boot(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}

	switch action {
	case receiptmodels.ActionAcceptAll:
		err = eng.AcceptAll(r.Context())
	case receiptmodels.ActionRejectAll:
		err = eng.RejectAll(r.Context())
	case receiptmodels.ActionSave:
		err = eng.SavePreferences(r.Context(), choices)
	case receiptmodels.ActionWithdraw:
		err = eng.Withdraw(r.Context())
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newStateView(eng.Consent(), eng.Language()))
}

// newActionEngine builds a documentless engine bound to this request's
// cookies.
func (g *Gateway) newActionEngine(w http.ResponseWriter, r *http.Request) (*loader.Engine, error) {
	return loader.New(loader.Options{
		SiteID:        g.siteID,
		Source:        g.source,
		Storage:       newCookieStorage(w, r, g.sealer, g.secure),
		Logger:        g.logger,
		Metrics:       g.loaderMetrics,
		BrowserLocale: language.FromAcceptLanguage(r.Header.Get("Accept-Language")),
	})
}

// forwardReceipt bridges one consent event to the receipt pipeline. It runs
// on the bus goroutine after the response may already be written, so
// cancellation is detached while request values (the visitor id) survive.
func (g *Gateway) forwardReceipt(action receiptmodels.Action, userAgent string) events.EventHandler {
	return func(ctx context.Context, event events.Event) {
		if g.receipts == nil {
			return
		}
		purposes := make(map[string]bool)
		if event.State != nil {
			for key, allowed := range event.State.Purposes {
				purposes[key] = allowed
			}
		}
		receipt := &receiptmodels.Receipt{
			SiteID:        event.SiteID,
			VisitorID:     requestcontext.VisitorID(ctx),
			Action:        action,
			Purposes:      purposes,
			Language:      event.Language,
			SchemaVersion: consent.SchemaVersion,
			UserAgent:     receiptmodels.SummarizeUserAgent(userAgent),
			CreatedAt:     event.Timestamp,
		}

		ctx = context.WithoutCancel(ctx)
		if err := g.receipts.Emit(ctx, receipt); err != nil {
			g.metrics.IncrementReceiptForward("error")
			g.logger.WarnContext(ctx, "receipt forward failed",
				"site_id", event.SiteID,
				"action", string(action),
				"error", err,
			)
			return
		}
		g.metrics.IncrementReceiptForward("ok")
	}
}
