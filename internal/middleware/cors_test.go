package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	local := "http://localhost:3000"

	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		wantStatus int
		wantNext   bool
		want       map[string]string
	}{
		{
			name:       "disabled",
			cfg:        CORSConfig{Enabled: false, AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     local,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:       "allowed origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{local}},
			method:     http.MethodGet,
			origin:     local,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": local, "Vary": "Origin"},
		},
		{
			name:       "disallowed origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{local}},
			method:     http.MethodGet,
			origin:     "http://evil.example",
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name: "preflight",
			cfg: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{local},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Authorization"},
				MaxAge:         600,
			},
			method:     http.MethodOptions,
			origin:     local,
			wantStatus: http.StatusNoContent,
			want: map[string]string{
				"Access-Control-Allow-Methods": "GET, OPTIONS",
				"Access-Control-Allow-Headers": "Authorization",
				"Access-Control-Max-Age":       "600",
			},
		},
		{
			name:       "disallowed preflight",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{local}, AllowedMethods: []string{"GET"}},
			method:     http.MethodOptions,
			origin:     "http://evil.example",
			wantStatus: http.StatusNoContent,
			want:       map[string]string{"Access-Control-Allow-Origin": "", "Access-Control-Allow-Methods": ""},
		},
		{
			name:       "wildcard drops credentials",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true},
			method:     http.MethodGet,
			origin:     local,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": "*", "Vary": "", "Access-Control-Allow-Credentials": ""},
		},
		{
			name:       "credentials and expose headers",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{local}, AllowCredentials: true, ExposeHeaders: []string{"X-Request-ID"}},
			method:     http.MethodGet,
			origin:     local,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Credentials": "true", "Access-Control-Expose-Headers": "X-Request-ID"},
		},
		{
			name:       "no origin header",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := CORSMiddleware(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/v1/users", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantNext, called)
			for header, value := range tt.want {
				assert.Equal(t, value, rr.Header().Get(header), header)
			}
		})
	}
}
