// Package middleware holds the HTTP layers in front of the list handlers: request logging,
// CORS, rate limiting and bearer-token authentication.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultRoleClaim is the token claim that selects a restriction policy.
const DefaultRoleClaim = "role"

type authContextKey struct{}

// AuthContext carries the verified identity of the caller.
type AuthContext struct {
	Subject string
	Issuer  string
	// Role is read from the configured role claim. Empty when the claim is absent.
	Role   string
	Method string
	Claims map[string]any
}

// WithAuthContext attaches auth information to ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// RoleFromContext returns the caller's role, if the request was authenticated with one.
func RoleFromContext(ctx context.Context) (string, bool) {
	auth, ok := AuthFromContext(ctx)
	if !ok || auth.Role == "" {
		return "", false
	}
	return auth.Role, true
}

func roleFromClaims(claims map[string]any, claim string) string {
	if claim == "" {
		claim = DefaultRoleClaim
	}
	switch v := claims[claim].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// writeJSONError writes {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSONError(w, http.StatusUnauthorized, message)
}

// RequireRole rejects authenticated callers whose role is not in allowed.
// An empty allow list admits every role.
func RequireRole(allowed []string) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := AuthFromContext(r.Context()); !ok {
				writeUnauthorized(w, "missing authentication")
				return
			}
			role, _ := RoleFromContext(r.Context())
			if _, ok := set[role]; !ok {
				writeJSONError(w, http.StatusForbidden, "role not permitted: "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
