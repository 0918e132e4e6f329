package authcore

import "context"

type clientIDContextKey struct{}
type identityContextKey struct{}

// WithClientID attaches the caller's client identifier (usually the remote
// address) to ctx. Audit events fall back to it when an operation is not
// given a client identifier explicitly.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

// ClientIDFromContext returns the identifier set by WithClientID, or "".
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	clientID, _ := ctx.Value(clientIDContextKey{}).(string)
	return clientID
}

// WithIdentity attaches a resolved identity to ctx. The RequireIdentity
// middleware calls it after a successful CurrentIdentity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}

	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
