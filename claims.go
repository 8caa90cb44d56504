package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the validated claims of a session token. Claims are
// the only source of truth during a request; nothing here re-reads the user
// record, so role changes only surface on the next renewal.
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	UserType() UserType
	IsAdmin() bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete implementation of AuthClaims
type SessionClaims struct {
	jwt.RegisteredClaims
	UID       string         `json:"uid,omitempty"`
	UserEmail string         `json:"email,omitempty"`
	UType     UserType       `json:"utype,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"` // extension payload
}

// Verify interface compliance
var _ AuthClaims = (*SessionClaims)(nil)

// NewSessionClaims builds claims for an identity with the standard layout
func NewSessionClaims(identity Identity, issuer string, audience []string, now time.Time, ttl time.Duration) *SessionClaims {
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID(),
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		UType:     identity.Type(),
	}
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Email returns the email claim captured at issuance
func (c *SessionClaims) Email() string {
	return c.UserEmail
}

// UserType returns the account type claim
func (c *SessionClaims) UserType() UserType {
	return c.UType
}

// IsAdmin reports whether the claims belong to an admin account. Staleness is
// bounded by the renewal cadence, the maintenance gate re-checks against the
// store when it matters.
func (c *SessionClaims) IsAdmin() bool {
	return IsAdminType(c.UType)
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *SessionClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
