package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type identityKey struct{}

// Identity is the request-scoped principal populated by RequireAuth. The
// engine never sees this — per SPEC_FULL.md's Open Question, auth is
// exclusively an HTTP-boundary concern.
type Identity struct {
	Subject string
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAuth verifies a bearer JWT against secret/issuer and attaches the
// resulting Identity to the request context. Requests with no or an
// invalid token are rejected before reaching any handler.
func RequireAuth(secret, issuer string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, authRequiredErr(), logger)
				return
			}

			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeError(w, authInvalidTokenErr(err), logger)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, Identity{Subject: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
