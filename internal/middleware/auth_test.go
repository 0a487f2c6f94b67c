package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func TestTokenAuth_OpenWithoutTokens(t *testing.T) {
	auth := NewTokenAuth(nil, nil)
	if auth.Enabled() {
		t.Error("Enabled() = true, want false with no tokens")
	}

	handler := auth.Wrap(okHandler())

	req := httptest.NewRequest("DELETE", "/api/v1/queues/default", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTokenAuth_RejectsBadHeaders(t *testing.T) {
	auth := NewTokenAuth([]string{"secret-token"}, nil)
	handler := auth.Wrap(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "secret-token"},
		{"wrong scheme", "Basic secret-token"},
		{"wrong token", "Bearer other-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
		})
	}
}

func TestTokenAuth_AcceptsAnyConfiguredToken(t *testing.T) {
	auth := NewTokenAuth([]string{"tok-a", "tok-b"}, nil)
	handler := auth.Wrap(okHandler())

	for _, token := range []string{"tok-a", "tok-b"} {
		req := httptest.NewRequest("POST", "/api/v1/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("token %q: status code = %d, want %d", token, rec.Code, http.StatusOK)
		}
	}
}

func TestTokenAuth_BearerCaseInsensitive(t *testing.T) {
	auth := NewTokenAuth([]string{"secret"}, nil)
	handler := auth.Wrap(okHandler())

	req := httptest.NewRequest("POST", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "bearer secret")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}
}
