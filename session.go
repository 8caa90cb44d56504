package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the request facing view of a validated token. It carries
// only what the claims carried, nothing here reflects the current user row.
type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Email          string         `json:"email,omitempty"`
	UserType       UserType       `json:"user_type,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) GetUserType() UserType {
	if s.UserType == "" {
		return UserTypeCentre
	}
	return s.UserType
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// IsAdmin reports whether the session belongs to an admin account
func (s *SessionObject) IsAdmin() bool {
	return IsAdminType(s.GetUserType())
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s type=%s aud=%v iss=%s iat=%s",
		s.UserID,
		s.UserType,
		s.Audience,
		s.Issuer,
		issuedAt,
	)
}

// sessionFromMapClaims converts raw middleware claims into a SessionObject
func sessionFromMapClaims(claims jwt.MapClaims) (*SessionObject, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	eat, err := claims.GetExpirationTime()
	if err != nil || eat == nil {
		return nil, ErrUnableToParseData
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, ErrUnableToParseData
	}

	email, _ := claims["email"].(string)
	utype, _ := claims["utype"].(string)

	userID := sub
	if uid, ok := claims["uid"].(string); ok && uid != "" {
		userID = uid
	}

	return &SessionObject{
		UserID:         userID,
		Email:          email,
		UserType:       UserType(utype),
		Audience:       aud,
		Issuer:         iss,
		IssuedAt:       &iat.Time,
		ExpirationDate: &eat.Time,
	}, nil
}

// sessionFromAuthClaims creates a SessionObject from validated claims
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToParseData
	}

	data := make(map[string]any)

	var audience []string
	issuer := claims.Subject()

	if sc, ok := claims.(*SessionClaims); ok {
		if len(sc.Metadata) > 0 {
			data["metadata"] = sc.Metadata
		}
		audience = append(audience, sc.RegisteredClaims.Audience...)
		if sc.RegisteredClaims.Issuer != "" {
			issuer = sc.RegisteredClaims.Issuer
		}
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		Email:          claims.Email(),
		UserType:       claims.UserType(),
		Audience:       audience,
		Issuer:         issuer,
		Data:           data,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
