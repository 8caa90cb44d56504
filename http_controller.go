package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

type Middleware interface {
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// HTTPAuthenticator is the surface the controller needs from the route
// authenticator.
type HTTPAuthenticator interface {
	Middleware
	Login(c router.Context, payload LoginPayload) error
	Logout(c router.Context)
	SetRedirect(c router.Context)
	GetRedirect(c router.Context, def ...string) string
	GetRedirectOrDefault(c router.Context) string
	MakeClientRouteAuthErrorHandler(optionalAuth bool) func(c router.Context, err error) error
}

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	user, ok := cookie.(*jwt.Token)
	if user == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := user.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromMapClaims(claims)
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetForm).
		SetName("pwd-reset-do.get")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.VerifyEmail), controller.VerifyEmail).
		SetName("verify-email.get")
}

type AuthControllerRoutes struct {
	Login         string
	Logout        string
	Register      string
	PasswordReset string
	VerifyEmail   string
}

type AuthControllerViews struct {
	Login         string
	Logout        string
	Register      string
	PasswordReset string
	VerifyEmail   string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Tokens       *SingleUseTokenManager
	Mailer       Mailer
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		Mailer:       NoopMailer{},
		ErrorHandler: defaultControllerErrHandler,
		Routes: &AuthControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			Register:      "/register",
			PasswordReset: "/password-reset",
			VerifyEmail:   "/verify-email",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			Logout:        "logout",
			Register:      "register",
			PasswordReset: "password_reset",
			VerifyEmail:   "verify_email",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Tokens == nil {
		c.Tokens = NewSingleUseTokenManager(c.Repo)
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the user asked to stay signed in
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": err.Error(),
		})
	}

	if a.Debug {
		a.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		errs["authentication"] = "Authentication Error"
		if IsEmailNotVerifiedError(err) {
			errs["authentication"] = "Email address is not verified"
		}
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  errs,
			"payload": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	UserType        string `form:"user_type" json:"user_type"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(6, 20)),
		validation.Field(&r.UserType, validation.In(UserTypeCentre, UserTypeJury)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	userType := payload.UserType
	if userType == "" {
		userType = UserTypeCentre
	}

	req := RegisterUserMessage{
		Email:    payload.Email,
		Phone:    payload.Phone,
		UserType: userType,
		Password: payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Tokens).
		WithMailer(a.Mailer).
		WithLogger(a.Logger)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your inbox to verify your email address",
	}).Redirect("/", fiber.StatusSeeOther)
}

const (
	stageKey = "stage"
	tokenKey = "token"
	emailKey = "email"
)

// Password reset form stages
const (
	ResetInit        = "show-reset"
	ResetEmailSent   = "email-sent"
	ChangingPassword = "change-password"
	ChangeFinalized  = "change-finalized"
	ResetUnknown     = "unknown-token"
)

func (a *AuthController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"reset": map[string]string{
			stageKey: ResetInit,
		},
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	errs := map[string]string{}
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		verrs := FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": verrs,
		})
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Tokens).
		WithMailer(a.Mailer).
		WithLogger(a.Logger)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error requesting password reset",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	// the response is the same whether or not the address exists
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": map[string]string{
			stageKey: ResetEmailSent,
			emailKey: payload.Email,
		},
	})
}

func (a *AuthController) PasswordResetForm(ctx router.Context) error {
	token := ctx.Param("token", "")

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": map[string]string{},
		"reset": map[string]string{
			stageKey: ChangingPassword,
			tokenKey: token,
		},
	})
}

// PasswordResetVerifyPayload holds values for password reset
type PasswordResetVerifyPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	token := ctx.Param("token", "")

	errs := map[string]string{}
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		errs = FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	input := FinalizePasswordResetMessage{
		Token:    token,
		Password: payload.Password,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Tokens).WithLogger(a.Logger)

	if err := finalizePwdReset.Execute(ctx.Context(), input); err != nil {
		stage := ChangingPassword
		if IsTokenNotFoundError(err) {
			stage = ResetUnknown
		}
		errs["validation"] = err.Error()
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"reset": router.ViewContext{
				stageKey: stage,
				tokenKey: token,
			},
		})
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": router.ViewContext{
			stageKey: ChangeFinalized,
			tokenKey: token,
		},
	})
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	token := ctx.Param("token", "")

	verify := NewVerifyEmailHandler(a.Tokens).WithLogger(a.Logger)

	if err := verify.Execute(ctx.Context(), VerifyEmailMessage{Token: token}); err != nil {
		a.Logger.Error("email verification error: %v", err)
		return ctx.Render(a.Views.VerifyEmail, router.ViewContext{
			"verified": false,
			"errors":   map[string]string{"verification": "The verification link is invalid or was already used"},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Email address verified, you can sign in now",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a view
// friendly map.
func FormatValidationErrorToMap(err error) map[string]string {
	result := map[string]string{}
	if err == nil {
		return result
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			result[field] = ferr.Error()
		}
		return result
	}

	result["error"] = err.Error()
	return result
}

func defaultControllerErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
