package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// WSTokenValidator implements go-router's WSTokenValidator interface on top
// of TokenService so WebSocket upgrades share the HTTP session tokens.
type WSTokenValidator struct {
	tokenService TokenService
}

// NewWSTokenValidator creates a new WebSocket token validator using the provided TokenService
func NewWSTokenValidator(tokenService TokenService) *WSTokenValidator {
	return &WSTokenValidator{
		tokenService: tokenService,
	}
}

// Validate validates a token string and returns WebSocket-compatible auth claims
func (w *WSTokenValidator) Validate(tokenString string) (router.WSAuthClaims, error) {
	claims, err := w.tokenService.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &WSAuthClaimsAdapter{claims: claims}, nil
}

// WSAuthClaimsAdapter adapts AuthClaims to go-router's WSAuthClaims interface.
// go-router speaks in roles and resource verbs; here roles map to account
// types and write access is reserved for admin sessions.
type WSAuthClaimsAdapter struct {
	claims AuthClaims
}

// Subject returns the subject claim
func (w *WSAuthClaimsAdapter) Subject() string {
	return w.claims.Subject()
}

// UserID returns the user ID
func (w *WSAuthClaimsAdapter) UserID() string {
	return w.claims.UserID()
}

// Role returns the account type as the role string
func (w *WSAuthClaimsAdapter) Role() string {
	return string(w.claims.UserType())
}

// CanRead reports whether the session may subscribe to a resource. Every
// authenticated session can read.
func (w *WSAuthClaimsAdapter) CanRead(resource string) bool {
	return true
}

// CanEdit reports whether the session may mutate a resource over the socket
func (w *WSAuthClaimsAdapter) CanEdit(resource string) bool {
	return w.claims.IsAdmin()
}

// CanCreate reports whether the session may create a resource over the socket
func (w *WSAuthClaimsAdapter) CanCreate(resource string) bool {
	return w.claims.IsAdmin()
}

// CanDelete reports whether the session may delete a resource over the socket
func (w *WSAuthClaimsAdapter) CanDelete(resource string) bool {
	return w.claims.IsAdmin()
}

// HasRole checks the account type. Admin sessions satisfy every role check.
func (w *WSAuthClaimsAdapter) HasRole(role string) bool {
	if w.claims.IsAdmin() {
		return true
	}
	return string(w.claims.UserType()) == role
}

// IsAtLeast compares account types on the centre < jury < admin ordering
func (w *WSAuthClaimsAdapter) IsAtLeast(minRole string) bool {
	required, ok := ParseUserType(minRole)
	if !ok {
		return false
	}
	return userTypeRank(w.claims.UserType()) >= userTypeRank(required)
}

// NewWSAuthMiddleware creates a fully configured WebSocket authentication
// middleware backed by the authenticator's TokenService.
func (a *Auther) NewWSAuthMiddleware(config ...router.WSAuthConfig) router.WebSocketMiddleware {
	validator := NewWSTokenValidator(a.tokenService)

	var cfg router.WSAuthConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	cfg.TokenValidator = validator

	return router.NewWSAuth(cfg)
}

// WSAuthClaimsFromContext retrieves the underlying AuthClaims from a
// WebSocket context. It returns false for claims issued by other validators.
func WSAuthClaimsFromContext(ctx context.Context) (AuthClaims, bool) {
	wsAuthClaims, ok := router.WSAuthClaimsFromContext(ctx)
	if !ok {
		return nil, false
	}

	if adapter, ok := wsAuthClaims.(*WSAuthClaimsAdapter); ok {
		return adapter.claims, true
	}

	return nil, false
}
