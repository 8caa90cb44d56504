package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// DefaultRenewalTTL is the expiry window stamped on slid sessions
var DefaultRenewalTTL = 24 * time.Hour

// DefaultGateCookieMaxAge bounds how long the browser keeps the session cookie
var DefaultGateCookieMaxAge = 7 * 24 * time.Hour

// GateConfig controls route classification and cookie handling for the gate.
type GateConfig struct {
	// CookieName is the session cookie the gate reads and refreshes
	CookieName string
	// SignInRoute is where unauthenticated protected traffic is sent
	SignInRoute string
	// MaintenanceRoute is the page shown while maintenance is active
	MaintenanceRoute string
	// APIPrefix marks routes that are admitted during maintenance and get
	// status codes instead of redirects
	APIPrefix string
	// ProtectedPrefixes require a valid session outside maintenance
	ProtectedPrefixes []string
	// RenewalTTL is the expiry on tokens minted by sliding renewal
	RenewalTTL time.Duration
	// CookieMaxAge is the browser lifetime of the refreshed cookie
	CookieMaxAge time.Duration
	// DevMode drops the Secure cookie attribute for local plain-http work
	DevMode bool
}

func (c GateConfig) withDefaults() GateConfig {
	if c.CookieName == "" {
		c.CookieName = "session"
	}
	if c.SignInRoute == "" {
		c.SignInRoute = "/login"
	}
	if c.MaintenanceRoute == "" {
		c.MaintenanceRoute = "/maintenance"
	}
	if c.APIPrefix == "" {
		c.APIPrefix = "/api"
	}
	if c.RenewalTTL <= 0 {
		c.RenewalTTL = DefaultRenewalTTL
	}
	if c.CookieMaxAge <= 0 {
		c.CookieMaxAge = DefaultGateCookieMaxAge
	}
	return c
}

// GateAction tells the transport adapter what to do with the request.
type GateAction int

const (
	// GateAllow lets the request through to the next handler
	GateAllow GateAction = iota
	// GateRedirect sends the browser elsewhere
	GateRedirect
	// GateDeny terminates the request with a status code
	GateDeny
)

// GateDecision is the outcome of evaluating one request. RenewedToken, when
// set, must be written back as the session cookie before the response leaves.
type GateDecision struct {
	Action       GateAction
	RedirectTo   string
	StatusCode   int
	Message      string
	ClearCookie  bool
	SetRedirect  bool
	RenewedToken string
}

// GateRequest is the transport-neutral view of an incoming request.
type GateRequest struct {
	Method string
	Path   string
	Token  string
}

// RequestGate combines session verification with the maintenance flag. The
// checks always run in the same order: maintenance state, maintenance
// admission, protected route access, sliding renewal.
type RequestGate struct {
	validator   TokenValidator
	admins      AdminVerifier
	maintenance MaintenanceProvider
	cfg         GateConfig
	logger      Logger
	now         func() time.Time
}

// NewRequestGate wires the gate. The maintenance provider is read on every
// request so flag changes apply without restarts.
func NewRequestGate(validator TokenValidator, admins AdminVerifier, maintenance MaintenanceProvider, cfg GateConfig) *RequestGate {
	return &RequestGate{
		validator:   validator,
		admins:      admins,
		maintenance: maintenance,
		cfg:         cfg.withDefaults(),
		logger:      defLogger{},
		now:         time.Now,
	}
}

func (g *RequestGate) WithLogger(logger Logger) *RequestGate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithClock injects a custom clock (useful for tests).
func (g *RequestGate) WithClock(clock func() time.Time) *RequestGate {
	if clock != nil {
		g.now = clock
	}
	return g
}

// Evaluate classifies one request. It never mutates state beyond minting a
// replacement token.
func (g *RequestGate) Evaluate(ctx context.Context, req GateRequest) GateDecision {
	claims, claimsErr := g.validateToken(req.Token)

	if decision, blocked := g.checkMaintenance(ctx, req, claims); blocked {
		return decision
	}

	if g.isProtected(req.Path) && claims == nil {
		return GateDecision{
			Action:      GateRedirect,
			RedirectTo:  g.cfg.SignInRoute,
			StatusCode:  http.StatusFound,
			SetRedirect: true,
			ClearCookie: req.Token != "" && claimsErr != nil,
		}
	}

	decision := GateDecision{Action: GateAllow}

	// a dead cookie gets replayed on every request until it is cleared,
	// even on routes that never needed it
	if req.Token != "" && claimsErr != nil && isIdempotentMethod(req.Method) {
		decision.ClearCookie = true
	}

	if claims != nil && isIdempotentMethod(req.Method) {
		renewed, err := g.renew(claims)
		if err != nil {
			g.logger.Warn("session renewal failed: %v", err)
		} else {
			decision.RenewedToken = renewed
		}
	}

	return decision
}

// checkMaintenance runs the first two gate steps. The second return value is
// true when the request must not proceed to the remaining steps.
func (g *RequestGate) checkMaintenance(ctx context.Context, req GateRequest, claims AuthClaims) (GateDecision, bool) {
	state, err := g.maintenance.MaintenanceState(ctx)
	if err != nil {
		// a broken settings read must not take the platform down
		g.logger.Error("maintenance state read failed: %v", err)
		return GateDecision{}, false
	}

	if !state.Enabled {
		return GateDecision{}, false
	}

	if g.isAdmittedDuringMaintenance(req.Path) {
		return GateDecision{}, false
	}

	if claims != nil {
		isAdmin, err := g.admins.IsAdmin(ctx, claims.UserID())
		if err != nil {
			// fail closed: an unverifiable admin is not an admin
			g.logger.Error("admin lookup failed during maintenance: %v", err)
		} else if isAdmin {
			return GateDecision{}, false
		}
	}

	return GateDecision{
		Action:     GateRedirect,
		RedirectTo: g.cfg.MaintenanceRoute,
		StatusCode: http.StatusFound,
		Message:    state.Message,
	}, true
}

func (g *RequestGate) validateToken(token string) (AuthClaims, error) {
	if token == "" {
		return nil, ErrUnableToFindSession
	}

	claims, err := g.validator.Validate(token)
	if err != nil {
		return nil, err
	}

	return claims, nil
}

func (g *RequestGate) renew(claims AuthClaims) (string, error) {
	renewer, ok := g.validator.(interface {
		Renew(claims AuthClaims, ttl time.Duration) (string, error)
	})
	if !ok {
		return "", ErrUnableToDecodeSession
	}
	return renewer.Renew(claims, g.cfg.RenewalTTL)
}

func (g *RequestGate) isAdmittedDuringMaintenance(path string) bool {
	return path == g.cfg.MaintenanceRoute ||
		path == g.cfg.SignInRoute ||
		strings.HasPrefix(path, g.cfg.APIPrefix)
}

func (g *RequestGate) isProtected(path string) bool {
	for _, prefix := range g.cfg.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// sliding renewal only happens on methods that cannot mutate state
func isIdempotentMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Middleware returns the gate as go-router middleware.
func (g *RequestGate) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token := c.Cookies(g.cfg.CookieName)
			if token == "" {
				token = c.Cookies(LegacySessionCookie)
			}

			decision := g.Evaluate(c.Context(), GateRequest{
				Method: c.Method(),
				Path:   c.Path(),
				Token:  token,
			})

			if decision.ClearCookie {
				g.clearCookie(c)
			}

			switch decision.Action {
			case GateRedirect:
				if decision.SetRedirect {
					g.setRejectedRoute(c)
				}
				return c.Redirect(decision.RedirectTo, decision.StatusCode)
			case GateDeny:
				return c.JSON(decision.StatusCode, map[string]string{
					"error": decision.Message,
				})
			}

			if decision.RenewedToken != "" {
				g.setSessionCookie(c, decision.RenewedToken)
			}

			return next(c)
		}
	}
}

func (g *RequestGate) setSessionCookie(c router.Context, token string) {
	c.Cookie(&router.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Expires:  g.now().Add(g.cfg.CookieMaxAge),
		HTTPOnly: true,
		Secure:   !g.cfg.DevMode,
		SameSite: "Lax",
	})
}

func (g *RequestGate) clearCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Expires:  g.now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
		Secure:   !g.cfg.DevMode,
		SameSite: "Lax",
	})
}

func (g *RequestGate) setRejectedRoute(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     "rejected_route",
		Value:    c.OriginalURL(),
		Expires:  g.now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   !g.cfg.DevMode,
		SameSite: "Lax",
	})
}
