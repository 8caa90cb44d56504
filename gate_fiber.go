package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// FiberMiddleware adapts the gate for applications mounted directly on fiber
// instead of go-router.
func (g *RequestGate) FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(g.cfg.CookieName)
		if token == "" {
			token = c.Cookies(LegacySessionCookie)
		}

		decision := g.Evaluate(c.UserContext(), GateRequest{
			Method: c.Method(),
			Path:   c.Path(),
			Token:  token,
		})

		if decision.ClearCookie {
			g.clearFiberCookie(c)
		}

		switch decision.Action {
		case GateRedirect:
			if decision.SetRedirect {
				g.setFiberRejectedRoute(c)
			}
			return c.Redirect(decision.RedirectTo, decision.StatusCode)
		case GateDeny:
			return c.Status(decision.StatusCode).JSON(fiber.Map{
				"error": decision.Message,
			})
		}

		if decision.RenewedToken != "" {
			g.setFiberSessionCookie(c, decision.RenewedToken)
		}

		return c.Next()
	}
}

func (g *RequestGate) setFiberSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Expires:  g.now().Add(g.cfg.CookieMaxAge),
		HTTPOnly: true,
		Secure:   !g.cfg.DevMode,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (g *RequestGate) clearFiberCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Expires:  g.now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
		Secure:   !g.cfg.DevMode,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (g *RequestGate) setFiberRejectedRoute(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     "rejected_route",
		Value:    c.OriginalURL(),
		Expires:  g.now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   !g.cfg.DevMode,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
