package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/smartgrant/session-server-go/internal/audit"
	"github.com/smartgrant/session-server-go/internal/auth"
	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/metrics"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

func GetIdentity(ctx context.Context) *auth.Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(*auth.Identity); ok {
		return identity
	}
	return nil
}

type AuthMiddleware struct {
	verifier auth.Verifier
}

func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		identity, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: token verification failed")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			metrics.AuthFailures.Inc()
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
