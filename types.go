package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetEmail() string
	GetUserType() UserType
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetExpiration() *time.Time
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	SessionFromToken(token string) (Session, error)
	IdentityFromSession(ctx context.Context, session Session) (Identity, error)
	RenewToken(raw string, ttl time.Duration) (string, error)
}

type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Type() UserType
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenService issues and validates signed session tokens
type TokenService interface {
	Issue(userID, email string, userType UserType, ttl time.Duration) (string, error)
	SignClaims(claims *SessionClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	Renew(claims AuthClaims, ttl time.Duration) (string, error)
}

// AdminVerifier answers whether a user id maps to an admin account. The gate
// depends on this interface, never on a concrete store, so it stays testable.
type AdminVerifier interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// AdminVerifierFunc adapts a function into an AdminVerifier.
type AdminVerifierFunc func(ctx context.Context, userID string) (bool, error)

func (f AdminVerifierFunc) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if f == nil {
		return false, nil
	}
	return f(ctx, userID)
}

// MaintenanceProvider reads the maintenance flag for the request gate
type MaintenanceProvider interface {
	MaintenanceState(ctx context.Context) (MaintenanceState, error)
}

// MaintenanceState is the gate facing view of the settings singleton
type MaintenanceState struct {
	Enabled bool
	Message string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
