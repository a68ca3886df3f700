package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	server := &Server{
		oidcAudience: "test-audience",
		authenticate: func(ctx context.Context, token string) (string, error) {
			if token == "valid-token" {
				return "user@example.com", nil
			}
			return "", assert.AnError
		},
	}

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if email, ok := r.Context().Value(userEmailContextKey).(string); ok {
			w.Header().Set("X-Email", email)
		}
		w.WriteHeader(http.StatusOK)
	})

	createReq := func(token string) *http.Request {
		req := httptest.NewRequest("POST", "/api/smarthome/mode", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req
	}

	t.Run("NoToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.authMiddleware(testHandler).ServeHTTP(w, createReq(""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.authMiddleware(testHandler).ServeHTTP(w, createReq("bad-token"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/smarthome/mode", nil)
		req.Header.Set("Authorization", "Basic abc")
		server.authMiddleware(testHandler).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ValidToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.authMiddleware(testHandler).ServeHTTP(w, createReq("valid-token"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user@example.com", w.Header().Get("X-Email"))
	})

	t.Run("AllowedEmails", func(t *testing.T) {
		server.allowedEmails = []string{"other@example.com"}
		defer func() { server.allowedEmails = nil }()

		w := httptest.NewRecorder()
		server.authMiddleware(testHandler).ServeHTTP(w, createReq("valid-token"))
		assert.Equal(t, http.StatusForbidden, w.Code)

		server.allowedEmails = []string{"other@example.com", "user@example.com"}
		w = httptest.NewRecorder()
		server.authMiddleware(testHandler).ServeHTTP(w, createReq("valid-token"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("BypassAuth", func(t *testing.T) {
		bypass := &Server{bypassAuth: true}
		w := httptest.NewRecorder()
		bypass.authMiddleware(testHandler).ServeHTTP(w, createReq(""))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Email"))
	})
}
