package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// IdentityResolver resolves a bearer token. *authcore.Engine implements it.
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context, token string) (*authcore.Identity, error)
}

// IdentityFromContext returns the identity attached by RequireIdentity.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	return authcore.IdentityFromContext(ctx)
}

// RequireIdentity rejects requests without a valid bearer token. Every token
// or identity failure answers 401 with a WWW-Authenticate challenge; a store
// outage answers 503. On success the identity is attached to the request
// context.
func RequireIdentity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			identity, err := resolver.CurrentIdentity(r.Context(), token)
			if err != nil {
				if authcore.StatusCode(err) == http.StatusServiceUnavailable {
					WriteError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
					return
				}
				unauthorized(w)
				return
			}

			ctx := authcore.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
}

// bearerToken accepts the scheme in any letter case.
func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
