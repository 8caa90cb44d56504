package auth

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokenService struct {
	claims    AuthClaims
	err       error
	lastToken string
}

func (s *stubTokenService) Issue(userID, email string, userType UserType, ttl time.Duration) (string, error) {
	return "", nil
}

func (s *stubTokenService) SignClaims(claims *SessionClaims) (string, error) {
	return "", nil
}

func (s *stubTokenService) Validate(tokenString string) (AuthClaims, error) {
	s.lastToken = tokenString
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func (s *stubTokenService) Renew(claims AuthClaims, ttl time.Duration) (string, error) {
	return "", nil
}

func wsClaims(userType UserType) *SessionClaims {
	return &SessionClaims{
		UID:       "user-123",
		UserEmail: "user@example.com",
		UType:     userType,
	}
}

func TestWSTokenValidatorValidate(t *testing.T) {
	t.Run("wraps validated claims", func(t *testing.T) {
		svc := &stubTokenService{claims: wsClaims(UserTypeJury)}
		validator := NewWSTokenValidator(svc)

		result, err := validator.Validate("valid-token")
		require.NoError(t, err)
		require.IsType(t, &WSAuthClaimsAdapter{}, result)
		assert.Equal(t, "valid-token", svc.lastToken)

		adapter := result.(*WSAuthClaimsAdapter)
		assert.Equal(t, svc.claims, adapter.claims)
	})

	t.Run("propagates validation errors", func(t *testing.T) {
		svc := &stubTokenService{err: ErrTokenMalformed}
		validator := NewWSTokenValidator(svc)

		result, err := validator.Validate("bad-token")
		require.Error(t, err)
		assert.Equal(t, ErrTokenMalformed, err)
		assert.Nil(t, result)
	})
}

func TestWSAuthClaimsAdapterIdentity(t *testing.T) {
	adapter := &WSAuthClaimsAdapter{claims: wsClaims(UserTypeJury)}

	assert.Equal(t, "user-123", adapter.UserID())
	assert.Equal(t, "jury", adapter.Role())
}

func TestWSAuthClaimsAdapterResourceAccess(t *testing.T) {
	t.Run("every session can read", func(t *testing.T) {
		for _, ut := range []UserType{UserTypeCentre, UserTypeJury, UserTypeAdmin} {
			adapter := &WSAuthClaimsAdapter{claims: wsClaims(ut)}
			assert.True(t, adapter.CanRead("results"))
		}
	})

	t.Run("writes are admin only", func(t *testing.T) {
		centre := &WSAuthClaimsAdapter{claims: wsClaims(UserTypeCentre)}
		assert.False(t, centre.CanEdit("results"))
		assert.False(t, centre.CanCreate("results"))
		assert.False(t, centre.CanDelete("results"))

		admin := &WSAuthClaimsAdapter{claims: wsClaims(UserTypeAdmin)}
		assert.True(t, admin.CanEdit("results"))
		assert.True(t, admin.CanCreate("results"))
		assert.True(t, admin.CanDelete("results"))
	})
}

func TestWSAuthClaimsAdapterHasRole(t *testing.T) {
	jury := &WSAuthClaimsAdapter{claims: wsClaims(UserTypeJury)}
	assert.True(t, jury.HasRole("jury"))
	assert.False(t, jury.HasRole("centre"))
	assert.False(t, jury.HasRole("admin"))

	admin := &WSAuthClaimsAdapter{claims: wsClaims(UserTypeAdmin)}
	assert.True(t, admin.HasRole("jury"))
	assert.True(t, admin.HasRole("centre"))
	assert.True(t, admin.HasRole("admin"))
}

func TestWSAuthClaimsAdapterIsAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		userType UserType
		minRole  string
		expected bool
	}{
		{name: "jury meets centre", userType: UserTypeJury, minRole: "centre", expected: true},
		{name: "jury meets jury", userType: UserTypeJury, minRole: "jury", expected: true},
		{name: "jury below admin", userType: UserTypeJury, minRole: "admin", expected: false},
		{name: "centre below jury", userType: UserTypeCentre, minRole: "jury", expected: false},
		{name: "admin meets everything", userType: UserTypeAdmin, minRole: "centre", expected: true},
		{name: "unknown role never matches", userType: UserTypeAdmin, minRole: "superuser", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &WSAuthClaimsAdapter{claims: wsClaims(tt.userType)}
			assert.Equal(t, tt.expected, adapter.IsAtLeast(tt.minRole))
		})
	}
}

type foreignWSClaims struct{}

func (o *foreignWSClaims) Subject() string                { return "other" }
func (o *foreignWSClaims) UserID() string                 { return "other" }
func (o *foreignWSClaims) Role() string                   { return "other" }
func (o *foreignWSClaims) CanRead(resource string) bool   { return false }
func (o *foreignWSClaims) CanEdit(resource string) bool   { return false }
func (o *foreignWSClaims) CanCreate(resource string) bool { return false }
func (o *foreignWSClaims) CanDelete(resource string) bool { return false }
func (o *foreignWSClaims) HasRole(role string) bool       { return false }
func (o *foreignWSClaims) IsAtLeast(minRole string) bool  { return false }

func TestWSAuthClaimsFromContext(t *testing.T) {
	t.Run("unwraps adapter claims", func(t *testing.T) {
		claims := wsClaims(UserTypeCentre)
		adapter := &WSAuthClaimsAdapter{claims: claims}

		ctx := context.WithValue(context.Background(), router.WSAuthContextKey{}, adapter)

		result, ok := WSAuthClaimsFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, AuthClaims(claims), result)
	})

	t.Run("no claims in context", func(t *testing.T) {
		result, ok := WSAuthClaimsFromContext(context.Background())
		assert.False(t, ok)
		assert.Nil(t, result)
	})

	t.Run("claims from another validator", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), router.WSAuthContextKey{}, &foreignWSClaims{})

		result, ok := WSAuthClaimsFromContext(ctx)
		assert.False(t, ok)
		assert.Nil(t, result)
	})
}
