package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		cfg    Config
		path   string
		header string
		want   int
	}{
		{"disabled", Config{}, "/api/v1/sky", "", http.StatusNoContent},
		{"missing token", Config{Token: "s3cret"}, "/api/v1/sky", "", http.StatusUnauthorized},
		{"wrong token", Config{Token: "s3cret"}, "/api/v1/sky", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", Config{Token: "s3cret"}, "/api/v1/sky", "Basic s3cret", http.StatusUnauthorized},
		{"valid token", Config{Token: "s3cret"}, "/api/v1/groundtrack", "Bearer s3cret", http.StatusNoContent},
		{"probe is public", Config{Token: "s3cret"}, "/readyz", "", http.StatusNoContent},
		{"metrics is public", Config{Token: "s3cret"}, "/metrics", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Middleware(tt.cfg)(ok).ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}
