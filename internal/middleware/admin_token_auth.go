package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"listquery/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig guards administrative endpoints such as schema reload.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	// Operation labels the admin access metric.
	Operation string
}

// AdminTokenAuthMiddleware accepts requests carrying the shared admin token.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	expected := strings.TrimSpace(cfg.Token)
	if expected == "" {
		return nil, errors.New("admin auth token is required")
	}
	header := strings.TrimSpace(cfg.HeaderName)
	if header == "" {
		header = defaultAdminTokenHeader
	}
	expectedDigest := sha256.Sum256([]byte(expected))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := sha256.Sum256([]byte(strings.TrimSpace(r.Header.Get(header))))
			ok := subtle.ConstantTimeCompare(provided[:], expectedDigest[:]) == 1
			metrics.RecordAdminAccess(r.Context(), cfg.Operation, ok)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject: "admin",
				Method:  "admin_token",
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
