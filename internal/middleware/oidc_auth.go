package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"listquery/internal/logging"
	"listquery/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const authMethodOIDC = "oidc"

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
	// CAFile adds a private CA for reaching the issuer.
	CAFile    string
	RoleClaim string
}

func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse oidc ca file")
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}, nil
}

// OIDCAuthMiddleware validates Bearer tokens against the issuer's JWKS when enabled.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}

	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience})

	if logger != nil {
		logger.Info("oidc authentication enabled", slog.String("issuer", cfg.IssuerURL))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(reason, message string, err error) {
				metrics.RecordAuthAttempt(r.Context(), authMethodOIDC, false)
				metrics.RecordAuthFailure(r.Context(), authMethodOIDC, reason)
				attrs := []any{slog.String("reason", reason), slog.String("path", r.URL.Path)}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				logging.FromContext(r.Context()).Warn("authentication failed", attrs...)
				writeUnauthorized(w, message)
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}

			idToken, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				metrics.RecordTokenValidationError(r.Context(), "verification_failed")
				reject("invalid_token", "invalid token", err)
				return
			}

			claims := map[string]any{}
			if err := idToken.Claims(&claims); err != nil {
				metrics.RecordTokenValidationError(r.Context(), "claims_parse_failed")
				reject("invalid_claims", "invalid token claims", err)
				return
			}
			if err := validateTimeClaims(claims, cfg.ClockSkew); err != nil {
				metrics.RecordTokenValidationError(r.Context(), "time_validation_failed")
				reject("invalid_time", "invalid token", err)
				return
			}

			auth := AuthContext{
				Subject: idToken.Subject,
				Issuer:  idToken.Issuer,
				Role:    roleFromClaims(claims, cfg.RoleClaim),
				Method:  authMethodOIDC,
				Claims:  claims,
			}
			metrics.RecordAuthAttempt(r.Context(), authMethodOIDC, true)
			annotateSpan(r.Context(), auth)

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), auth)))
		})
	}, nil
}

func annotateSpan(ctx context.Context, auth AuthContext) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("auth.subject", auth.Subject),
		attribute.String("auth.method", auth.Method),
		attribute.String("auth.role", auth.Role),
	)
}

func validateTimeClaims(claims map[string]any, skew time.Duration) error {
	if skew <= 0 {
		return nil
	}

	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}
