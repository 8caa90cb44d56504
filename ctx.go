package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithIdentity attaches the resolved security identity marker to the context.
// The marker is request scoped by construction: it travels with this context
// and dies with it, there is no process wide fallback to leak across requests.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityCtxKey, userID)
}

// CurrentIdentity reads the security identity marker for the current scope
// only. It returns empty when no identity was propagated.
func CurrentIdentity(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(identityCtxKey).(string)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// IsAdminFromRouter is a convenience check against the claims stored by the
// JWT middleware.
func IsAdminFromRouter(ctx router.Context) bool {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return false
	}
	return claims.IsAdmin()
}
