package csrf

import "github.com/goliatone/go-router"

const (
	defaultRoutePath = "/csrf"
	defaultRouteName = "auth.csrf.get"
)

// RouteConfig controls the CSRF token bootstrap endpoint.
type RouteConfig struct {
	// Path is the route registered for retrieving the CSRF token.
	Path string
	// ContextKey is the context key where the middleware stored the token.
	ContextKey string
	// RouteName is the name assigned to the registered route.
	RouteName string
}

func (c RouteConfig) withDefaults() RouteConfig {
	if c.Path == "" {
		c.Path = defaultRoutePath
	}
	if c.ContextKey == "" {
		c.ContextKey = DefaultContextKey
	}
	if c.RouteName == "" {
		c.RouteName = defaultRouteName
	}
	return c
}

// RegisterRoutes adds a GET endpoint that hands clients the current CSRF
// token plus the form field and header names they should echo it back in.
// The CSRF middleware must run before this route so the token is already
// on the request context.
func RegisterRoutes[T any](app router.Router[T], cfg ...RouteConfig) {
	conf := RouteConfig{}
	if len(cfg) > 0 {
		conf = cfg[0]
	}
	conf = conf.withDefaults()
	app.Get(conf.Path, tokenHandler(conf)).SetName(conf.RouteName)
}

func tokenHandler(cfg RouteConfig) router.HandlerFunc {
	return func(ctx router.Context) error {
		token, _ := ctx.Locals(cfg.ContextKey).(string)
		if token == "" {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": ErrTokenMissing.Error(),
			})
		}

		// Tokens rotate per session; never let intermediaries cache them.
		ctx.SetHeader("Cache-Control", "no-store, max-age=0")
		ctx.SetHeader("Pragma", "no-cache")
		ctx.SetHeader("Expires", "0")

		fieldName := DefaultFormFieldName
		if v, ok := ctx.Locals(cfg.ContextKey + "_field").(string); ok && v != "" {
			fieldName = v
		}

		headerName := DefaultHeaderName
		if v, ok := ctx.Locals(cfg.ContextKey + "_header").(string); ok && v != "" {
			headerName = v
		}

		return ctx.JSON(router.StatusOK, map[string]string{
			"token":       token,
			"field_name":  fieldName,
			"header_name": headerName,
		})
	}
}
