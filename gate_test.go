package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gateMaintenance struct {
	state auth.MaintenanceState
	err   error
}

func (g gateMaintenance) MaintenanceState(ctx context.Context) (auth.MaintenanceState, error) {
	return g.state, g.err
}

// renewingValidator accepts exactly one token and can mint replacements, the
// same surface the gate sees when wired to the token service.
type renewingValidator struct {
	claims  auth.AuthClaims
	renewed string
	lastTTL time.Duration
}

func (v *renewingValidator) Validate(tokenString string) (auth.AuthClaims, error) {
	if v.claims == nil || tokenString != "good-token" {
		return nil, auth.ErrTokenMalformed
	}
	return v.claims, nil
}

func (v *renewingValidator) Renew(claims auth.AuthClaims, ttl time.Duration) (string, error) {
	v.lastTTL = ttl
	return v.renewed, nil
}

func gateSessionClaims(userType auth.UserType) *auth.SessionClaims {
	return &auth.SessionClaims{
		UID:       "user-1",
		UserEmail: "user@example.com",
		UType:     userType,
	}
}

func TestGateEvaluateRouteClassification(t *testing.T) {
	ctx := context.Background()
	gate := auth.NewRequestGate(
		&renewingValidator{},
		auth.AdminVerifierFunc(nil),
		gateMaintenance{},
		auth.GateConfig{ProtectedPrefixes: []string{"/app"}},
	)

	t.Run("anonymous public traffic passes", func(t *testing.T) {
		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/"})
		assert.Equal(t, auth.GateAllow, decision.Action)
		assert.Empty(t, decision.RenewedToken)
	})

	t.Run("anonymous protected traffic is sent to sign in", func(t *testing.T) {
		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/app/reports"})
		assert.Equal(t, auth.GateRedirect, decision.Action)
		assert.Equal(t, "/login", decision.RedirectTo)
		assert.Equal(t, http.StatusFound, decision.StatusCode)
		assert.True(t, decision.SetRedirect)
		assert.False(t, decision.ClearCookie)
	})

	t.Run("a rejected token is also cleared", func(t *testing.T) {
		decision := gate.Evaluate(ctx, auth.GateRequest{
			Method: http.MethodGet,
			Path:   "/app/reports",
			Token:  "garbage",
		})
		assert.Equal(t, auth.GateRedirect, decision.Action)
		assert.True(t, decision.ClearCookie)
	})

	t.Run("a dead cookie on a public route is cleared without a redirect", func(t *testing.T) {
		decision := gate.Evaluate(ctx, auth.GateRequest{
			Method: http.MethodGet,
			Path:   "/",
			Token:  "garbage",
		})
		assert.Equal(t, auth.GateAllow, decision.Action)
		assert.True(t, decision.ClearCookie)
	})

	t.Run("mutating requests leave the cookie for the next idempotent one", func(t *testing.T) {
		decision := gate.Evaluate(ctx, auth.GateRequest{
			Method: http.MethodPost,
			Path:   "/",
			Token:  "garbage",
		})
		assert.Equal(t, auth.GateAllow, decision.Action)
		assert.False(t, decision.ClearCookie)
	})
}

func TestGateEvaluateSlidingRenewal(t *testing.T) {
	ctx := context.Background()

	t.Run("GET and HEAD refresh the session", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodHead} {
			validator := &renewingValidator{
				claims:  gateSessionClaims(auth.UserTypeCentre),
				renewed: "next-token",
			}
			gate := auth.NewRequestGate(validator, auth.AdminVerifierFunc(nil), gateMaintenance{},
				auth.GateConfig{RenewalTTL: 2 * time.Hour})

			decision := gate.Evaluate(ctx, auth.GateRequest{Method: method, Path: "/", Token: "good-token"})
			assert.Equal(t, auth.GateAllow, decision.Action)
			assert.Equal(t, "next-token", decision.RenewedToken)
			assert.Equal(t, 2*time.Hour, validator.lastTTL)
		}
	})

	t.Run("mutating methods never mint tokens", func(t *testing.T) {
		validator := &renewingValidator{
			claims:  gateSessionClaims(auth.UserTypeCentre),
			renewed: "next-token",
		}
		gate := auth.NewRequestGate(validator, auth.AdminVerifierFunc(nil), gateMaintenance{}, auth.GateConfig{})

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodPost, Path: "/", Token: "good-token"})
		assert.Equal(t, auth.GateAllow, decision.Action)
		assert.Empty(t, decision.RenewedToken)
	})

	t.Run("validators without renewal support still admit", func(t *testing.T) {
		validator := auth.TokenValidatorFunc(func(tokenString string) (auth.AuthClaims, error) {
			return gateSessionClaims(auth.UserTypeCentre), nil
		})
		gate := auth.NewRequestGate(validator, auth.AdminVerifierFunc(nil), gateMaintenance{}, auth.GateConfig{})

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/", Token: "good-token"})
		assert.Equal(t, auth.GateAllow, decision.Action)
		assert.Empty(t, decision.RenewedToken)
	})
}

func TestGateEvaluateMaintenance(t *testing.T) {
	ctx := context.Background()
	active := gateMaintenance{state: auth.MaintenanceState{Enabled: true, Message: "back soon"}}

	newGate := func(validator auth.TokenValidator, admins auth.AdminVerifierFunc, maintenance gateMaintenance) *auth.RequestGate {
		return auth.NewRequestGate(validator, admins, maintenance, auth.GateConfig{
			ProtectedPrefixes: []string{"/app"},
		})
	}

	t.Run("anonymous traffic is parked on the maintenance page", func(t *testing.T) {
		gate := newGate(&renewingValidator{}, nil, active)

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/"})
		assert.Equal(t, auth.GateRedirect, decision.Action)
		assert.Equal(t, "/maintenance", decision.RedirectTo)
		assert.Equal(t, "back soon", decision.Message)
	})

	t.Run("the maintenance page, sign in, and the API stay reachable", func(t *testing.T) {
		gate := newGate(&renewingValidator{}, nil, active)

		for _, path := range []string{"/maintenance", "/login", "/api/health"} {
			decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: path})
			assert.Equal(t, auth.GateAllow, decision.Action, "path %s", path)
		}
	})

	t.Run("admins keep working through maintenance", func(t *testing.T) {
		validator := &renewingValidator{claims: gateSessionClaims(auth.UserTypeAdmin), renewed: "next-token"}
		admins := auth.AdminVerifierFunc(func(ctx context.Context, userID string) (bool, error) {
			return userID == "user-1", nil
		})
		gate := newGate(validator, admins, active)

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/app/reports", Token: "good-token"})
		assert.Equal(t, auth.GateAllow, decision.Action)
		assert.Equal(t, "next-token", decision.RenewedToken)
	})

	t.Run("a valid non admin session is still parked", func(t *testing.T) {
		validator := &renewingValidator{claims: gateSessionClaims(auth.UserTypeJury)}
		admins := auth.AdminVerifierFunc(func(ctx context.Context, userID string) (bool, error) {
			return false, nil
		})
		gate := newGate(validator, admins, active)

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/app/reports", Token: "good-token"})
		assert.Equal(t, auth.GateRedirect, decision.Action)
		assert.Equal(t, "/maintenance", decision.RedirectTo)
	})

	t.Run("an unverifiable admin is not an admin", func(t *testing.T) {
		validator := &renewingValidator{claims: gateSessionClaims(auth.UserTypeAdmin)}
		admins := auth.AdminVerifierFunc(func(ctx context.Context, userID string) (bool, error) {
			return false, errors.New("connection refused")
		})
		gate := newGate(validator, admins, active)

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/app/reports", Token: "good-token"})
		assert.Equal(t, auth.GateRedirect, decision.Action)
		assert.Equal(t, "/maintenance", decision.RedirectTo)
	})

	t.Run("a broken settings read behaves as maintenance off", func(t *testing.T) {
		broken := gateMaintenance{err: errors.New("settings table missing")}
		gate := newGate(&renewingValidator{}, nil, broken)

		decision := gate.Evaluate(ctx, auth.GateRequest{Method: http.MethodGet, Path: "/"})
		assert.Equal(t, auth.GateAllow, decision.Action)
	})
}

func TestGateMiddleware(t *testing.T) {
	t.Run("redirects and remembers the rejected route", func(t *testing.T) {
		gate := auth.NewRequestGate(
			&renewingValidator{},
			auth.AdminVerifierFunc(nil),
			gateMaintenance{},
			auth.GateConfig{ProtectedPrefixes: []string{"/app"}},
		)

		mockCtx := new(MockContext)
		mockCtx.On("Cookies", "session").Return("")
		mockCtx.On("Cookies", auth.LegacySessionCookie).Return("")
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Method").Return(http.MethodGet)
		mockCtx.On("Path").Return("/app/reports")
		mockCtx.On("OriginalURL").Return("/app/reports?tab=1")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "/app/reports?tab=1" && c.HTTPOnly
		})).Return()
		mockCtx.On("Redirect", "/login", []int{http.StatusFound}).Return(nil)

		nextCalled := false
		handler := gate.Middleware()(func(c router.Context) error {
			nextCalled = true
			return nil
		})

		err := handler(mockCtx)
		require.NoError(t, err)
		assert.False(t, nextCalled)
		mockCtx.AssertExpectations(t)
	})

	t.Run("admits a valid session and writes the refreshed cookie", func(t *testing.T) {
		validator := &renewingValidator{
			claims:  gateSessionClaims(auth.UserTypeCentre),
			renewed: "next-token",
		}
		gate := auth.NewRequestGate(validator, auth.AdminVerifierFunc(nil), gateMaintenance{}, auth.GateConfig{})

		mockCtx := new(MockContext)
		mockCtx.On("Cookies", "session").Return("good-token")
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("Method").Return(http.MethodGet)
		mockCtx.On("Path").Return("/")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "session" && c.Value == "next-token" && c.HTTPOnly &&
				c.Expires.After(time.Now().Add(6*24*time.Hour))
		})).Return()

		nextCalled := false
		handler := gate.Middleware()(func(c router.Context) error {
			nextCalled = true
			return nil
		})

		err := handler(mockCtx)
		require.NoError(t, err)
		assert.True(t, nextCalled)
		mockCtx.AssertExpectations(t)
	})
}
