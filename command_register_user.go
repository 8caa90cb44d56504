package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	UserType  UserType `json:"user_type"`
	Password  string   `json:"password"`
	UseHashid bool
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates the account and kicks off email verification.
// The verification email is best effort, a delivery failure never rolls the
// registration back.
type RegisterUserHandler struct {
	repo        RepositoryManager
	tokens      *SingleUseTokenManager
	mailer      Mailer
	logger      Logger
	phoneRegion string
}

func NewRegisterUserHandler(repo RepositoryManager, tokens *SingleUseTokenManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:        repo,
		tokens:      tokens,
		mailer:      NoopMailer{},
		logger:      defLogger{},
		phoneRegion: "FR",
	}
}

func (h *RegisterUserHandler) WithMailer(m Mailer) *RegisterUserHandler {
	h.mailer = normalizeMailer(m)
	return h
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

// WithPhoneRegion sets the default region used to parse national numbers.
func (h *RegisterUserHandler) WithPhoneRegion(region string) *RegisterUserHandler {
	if region != "" {
		h.phoneRegion = region
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	phone, err := h.normalizePhone(event.Phone)
	if err != nil {
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Phone = phone
		user.Type = event.UserType
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.sendVerificationEmail(ctx, user)

	return nil
}

func (h *RegisterUserHandler) sendVerificationEmail(ctx context.Context, user *User) {
	token, err := h.tokens.IssueVerificationToken(ctx, user.ID)
	if err != nil {
		h.logger.Error("failed to issue verification token for %s: %v", user.ID, err)
		return
	}

	err = h.mailer.Send(ctx, MailMessage{
		To:       user.Email,
		Template: MailTemplateVerifyEmail,
		Params: map[string]any{
			"token": token,
			"link":  "/verify-email/" + token,
		},
	})
	if err != nil {
		h.logger.Error("failed to send verification email to %s: %v", user.Email, err)
	}
}

func (h *RegisterUserHandler) normalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	parsed, err := phonenumbers.Parse(raw, h.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithTextCode("INVALID_PHONE_NUMBER").
			WithMetadata(map[string]any{"phone": raw})
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
