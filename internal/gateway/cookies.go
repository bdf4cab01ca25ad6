package gateway

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"assent/internal/loader/consent"
)

// Cookie names the gateway owns on the proxied site's origin.
const (
	// ConsentCookie carries the sealed consent state. Sealed and
	// base64url-encoded; a value that fails authentication reads as a first
	// visit.
	ConsentCookie = "assent_consent"
	// LanguageCookie carries the resolved banner language. Plaintext and
	// readable by page scripts.
	LanguageCookie = "assent_lang"
	// VisitorCookie carries the pseudonymous visitor id receipts key on.
	VisitorCookie = "assent_vid"
)

const (
	consentCookieTTL  = 365 * 24 * time.Hour
	languageCookieTTL = 365 * 24 * time.Hour
	visitorCookieTTL  = 365 * 24 * time.Hour
)

// cookieStorage adapts one request/response pair to the engine's storage
// port: reads come from the request's cookies, writes become Set-Cookie
// headers on the response. The response headers must still be open when the
// engine runs, so each instance lives for exactly one request.
type cookieStorage struct {
	r      *http.Request
	w      http.ResponseWriter
	sealer *consent.Sealer
	secure bool
}

var _ consent.Storage = (*cookieStorage)(nil)

func newCookieStorage(w http.ResponseWriter, r *http.Request, sealer *consent.Sealer, secure bool) *cookieStorage {
	return &cookieStorage{r: r, w: w, sealer: sealer, secure: secure}
}

// LoadState reads the sealed consent cookie. Absent, unreadable, tampered,
// foreign, or version-unknown values all read as no prior decision; cookies
// arrive from an untrusted client, so none of that is an error.
func (c *cookieStorage) LoadState(_ context.Context, websiteID string) (*consent.State, error) {
	ck, err := c.r.Cookie(ConsentCookie)
	if err != nil {
		return nil, nil
	}
	blob, err := base64.RawURLEncoding.DecodeString(ck.Value)
	if err != nil {
		return nil, nil
	}
	plain, err := c.sealer.Open(blob)
	if err != nil {
		return nil, nil
	}
	return consent.DecodeOwned(plain, websiteID), nil
}

// SaveState seals the state and sets the consent cookie on the response.
func (c *cookieStorage) SaveState(_ context.Context, state *consent.State) error {
	data, err := consent.EncodeState(state)
	if err != nil {
		return err
	}
	blob, err := c.sealer.Seal(data)
	if err != nil {
		return err
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     ConsentCookie,
		Value:    base64.RawURLEncoding.EncodeToString(blob),
		Path:     "/",
		MaxAge:   int(consentCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearState expires the consent cookie.
func (c *cookieStorage) ClearState(context.Context) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     ConsentCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// LoadLanguage reads the plaintext language cookie. Values that do not look
// like a language code read as absent.
func (c *cookieStorage) LoadLanguage(context.Context) (string, error) {
	ck, err := c.r.Cookie(LanguageCookie)
	if err != nil {
		return "", nil
	}
	if !validLanguageCode(ck.Value) {
		return "", nil
	}
	return ck.Value, nil
}

// SaveLanguage sets the language cookie. Not HttpOnly: the banner reads it to
// render in the resolved language before the engine answers.
func (c *cookieStorage) SaveLanguage(_ context.Context, code string) error {
	if !validLanguageCode(code) {
		return nil
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     LanguageCookie,
		Value:    code,
		Path:     "/",
		MaxAge:   int(languageCookieTTL / time.Second),
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// validLanguageCode accepts lowercase primary subtags ("en", "pt") and keeps
// arbitrary client-set junk out of the engine.
func validLanguageCode(code string) bool {
	if len(code) < 2 || len(code) > 8 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
