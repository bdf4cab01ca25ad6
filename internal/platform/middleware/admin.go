package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"assent/pkg/requestcontext"
)

// AdminClaims represents the claims we expect from the admin token validator.
type AdminClaims struct {
	Subject string
	Role    string
}

// AdminValidator validates admin bearer tokens for the ingest surface.
type AdminValidator interface {
	ValidateAdminToken(tokenString string) (*AdminClaims, error)
}

// RequireAdmin guards the runtime-config admin routes with a JWT bearer token.
func RequireAdmin(validator AdminValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "admin access without token",
					"request_id", requestID,
				)
				writeUnauthorized(w)
				return
			}

			claims, err := validator.ValidateAdminToken(token)
			if err != nil {
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", requestID,
					"error", err,
				)
				writeUnauthorized(w)
				return
			}
			if claims.Role != "admin" {
				logger.WarnContext(ctx, "admin token without admin role",
					"request_id", requestID,
					"subject", claims.Subject,
				)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"valid admin token required"}`))
}
