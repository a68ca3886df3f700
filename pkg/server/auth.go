package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/heatlink/heatlink/pkg/log"
)

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.WithAttrs(ctx, slog.String("reqPath", r.URL.Path))

		if s.bypassAuth {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "unauthenticated request")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).ErrorContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		email, err := s.authenticate(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
			return
		}

		if len(s.allowedEmails) > 0 && !s.isAllowedEmail(email) {
			log.Ctx(ctx).WarnContext(ctx, "email not allowed", slog.String("email", email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = log.WithAttrs(ctx, slog.String("authEmail", email))
		ctx = context.WithValue(ctx, userEmailContextKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// oidcAuthenticator wraps an OIDC verifier into an authenticator that
// returns the verified email claim.
func oidcAuthenticator(verify tokenVerifier) authenticator {
	return func(ctx context.Context, token string) (string, error) {
		idToken, err := verify(ctx, token)
		if err != nil {
			return "", err
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", err
		}
		return claims.Email, nil
	}
}

// isAllowedEmail returns true if the email is in the allowedEmails list.
func (s *Server) isAllowedEmail(email string) bool {
	for _, allowed := range s.allowedEmails {
		if email == allowed {
			return true
		}
	}
	return false
}
