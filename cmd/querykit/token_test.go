package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/middleware"
)

func TestTokenAcceptedByJWTAuth(t *testing.T) {
	out, err := execute(t, "", "token", "--secret", "s3cret", "--issuer", "local", "--role", "analyst", "--subject", "alice")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	auth, err := middleware.JWTAuthMiddleware(middleware.JWTAuthConfig{
		Enabled:  true,
		Secret:   "s3cret",
		Issuer:   "local",
		Audience: "listquery",
	}, nil, nil)
	require.NoError(t, err)

	var got middleware.AuthContext
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = middleware.AuthFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", got.Subject)
	assert.Equal(t, "analyst", got.Role)
}

func TestTokenSecretFile(t *testing.T) {
	secret := writeFile(t, "secret", "from-file\n")
	signed, err := mintToken(&tokenOptions{SecretFile: secret, Subject: "svc", Expires: time.Minute}, time.Now())
	require.NoError(t, err)
	assert.Len(t, strings.Split(signed, "."), 3)
}

func TestTokenErrors(t *testing.T) {
	_, err := mintToken(&tokenOptions{Expires: time.Minute}, time.Now())
	assert.ErrorContains(t, err, "secret is required")

	_, err = mintToken(&tokenOptions{Secret: "x", Expires: 0}, time.Now())
	assert.ErrorContains(t, err, "invalid lifetime")

	_, err = execute(t, "", "token", "--secret", "a", "--secret-file", "b")
	assert.Error(t, err)
}
