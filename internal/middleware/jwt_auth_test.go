package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret-for-tests"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWTAuthMiddleware(t *testing.T) {
	mw, err := JWTAuthMiddleware(JWTAuthConfig{
		Enabled:   true,
		Secret:    testSecret,
		Issuer:    "listquery-tests",
		Audience:  "listquery",
		RoleClaim: "app_role",
	}, nil, nil)
	require.NoError(t, err)

	valid := jwt.MapClaims{
		"sub":      "user-1",
		"iss":      "listquery-tests",
		"aud":      "listquery",
		"exp":      time.Now().Add(time.Hour).Unix(),
		"app_role": "analyst",
	}
	with := func(k string, v any) jwt.MapClaims {
		c := jwt.MapClaims{}
		for key, val := range valid {
			c[key] = val
		}
		c[k] = v
		return c
	}

	tests := []struct {
		name     string
		header   string
		want     int
		wantRole string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), http.StatusOK, "analyst"},
		{"lowercase scheme", "bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), valid), http.StatusOK, "analyst"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), valid), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), with("exp", time.Now().Add(-time.Hour).Unix())), http.StatusUnauthorized, ""},
		{"wrong issuer", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), with("iss", "elsewhere")), http.StatusUnauthorized, ""},
		{"wrong audience", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), with("aud", "other")), http.StatusUnauthorized, ""},
		{"none algorithm", "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRole string
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRole, _ = RoleFromContext(r.Context())
				auth, _ := AuthFromContext(r.Context())
				assert.Equal(t, "user-1", auth.Subject)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.wantRole, gotRole)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestJWTAuthMiddlewareRequiresSecret(t *testing.T) {
	_, err := JWTAuthMiddleware(JWTAuthConfig{Enabled: true}, nil, nil)
	assert.ErrorContains(t, err, "secret not configured")

	mw, err := JWTAuthMiddleware(JWTAuthConfig{}, nil, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/users", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTokenErrorReason(t *testing.T) {
	assert.Equal(t, "expired", tokenErrorReason(jwt.ErrTokenExpired))
	assert.Equal(t, "signature", tokenErrorReason(jwt.ErrTokenSignatureInvalid))
	assert.Equal(t, "malformed", tokenErrorReason(jwt.ErrTokenMalformed))
}
