package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"listquery/internal/logging"
	"listquery/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

const authMethodJWT = "jwt"

// JWTAuthConfig validates HMAC-signed bearer tokens issued with a shared secret.
type JWTAuthConfig struct {
	Enabled   bool
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	RoleClaim string
}

// JWTAuthMiddleware verifies HS256/HS384/HS512 tokens and stores the caller's identity.
func JWTAuthMiddleware(cfg JWTAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("jwt auth enabled but secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	if logger != nil {
		logger.Info("jwt authentication enabled", slog.String("issuer", cfg.Issuer))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				metrics.RecordAuthAttempt(r.Context(), authMethodJWT, false)
				metrics.RecordAuthFailure(r.Context(), authMethodJWT, "missing_token")
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil {
				reason := tokenErrorReason(err)
				metrics.RecordAuthAttempt(r.Context(), authMethodJWT, false)
				metrics.RecordAuthFailure(r.Context(), authMethodJWT, reason)
				metrics.RecordTokenValidationError(r.Context(), reason)
				logging.FromContext(r.Context()).Warn("jwt validation failed",
					slog.String("reason", reason),
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			subject, _ := claims.GetSubject()
			issuer, _ := claims.GetIssuer()
			auth := AuthContext{
				Subject: subject,
				Issuer:  issuer,
				Role:    roleFromClaims(claims, cfg.RoleClaim),
				Method:  authMethodJWT,
				Claims:  claims,
			}
			metrics.RecordAuthAttempt(r.Context(), authMethodJWT, true)
			annotateSpan(r.Context(), auth)

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), auth)))
		})
	}, nil
}

func tokenErrorReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_valid_yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	default:
		return "malformed"
	}
}
