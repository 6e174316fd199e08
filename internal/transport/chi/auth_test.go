package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys pass through", nil, "/sessions/s1", "", http.StatusOK},
		{"empty keys pass through", []string{"", ""}, "/sessions/s1", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/sessions/s1", "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "/sessions/s1", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong token", []string{"secret"}, "/sessions/s1", "Bearer nope", http.StatusUnauthorized},
		{"valid token", []string{"secret"}, "/sessions/s1", "Bearer secret", http.StatusOK},
		{"second key", []string{"k1", "k2"}, "/sessions/s1", "Bearer k2", http.StatusOK},
		{"lowercase scheme", []string{"secret"}, "/sessions/s1", "bearer secret", http.StatusOK},
		{"scheme only", []string{"secret"}, "/sessions/s1", "Bearer", http.StatusUnauthorized},
		{"token prefix", []string{"secret"}, "/sessions/s1", "Bearer secre", http.StatusUnauthorized},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tt.keys)(okHandler())
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			var resp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Code != codeUnauthorized {
				t.Errorf("code = %s", resp.Code)
			}
		})
	}
}
