package auth

import (
	"context"
)

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// OwnerID returns the authenticated owner id or "".
func OwnerID(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.OwnerID
	}
	return ""
}
