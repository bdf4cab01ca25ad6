package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"assent/pkg/requestcontext"
)

// ensureVisitor guarantees the request carries a visitor id: an existing
// valid cookie is reused, anything else gets a fresh uuid minted and set on
// the response. The id lands in the request context so the receipt pipeline
// can key on it.
func ensureVisitor(w http.ResponseWriter, r *http.Request, secure bool) (*http.Request, string) {
	id := ""
	if ck, err := r.Cookie(VisitorCookie); err == nil {
		if parsed, perr := uuid.Parse(ck.Value); perr == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     VisitorCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(visitorCookieTTL / time.Second),
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return r.WithContext(requestcontext.WithVisitorID(r.Context(), id)), id
}
