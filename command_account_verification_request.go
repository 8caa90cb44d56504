package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type VerificationRequestMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
}

func (p VerificationRequestMessage) Type() string { return "user.verification_request" }

// VerificationRequestHandler re-sends the verification email. Unknown and
// already verified addresses are acknowledged silently, the caller learns
// nothing about the account.
type VerificationRequestHandler struct {
	repo   RepositoryManager
	tokens *SingleUseTokenManager
	mailer Mailer
	logger Logger
}

func NewVerificationRequestHandler(repo RepositoryManager, tokens *SingleUseTokenManager) *VerificationRequestHandler {
	return &VerificationRequestHandler{
		repo:   repo,
		tokens: tokens,
		mailer: NoopMailer{},
		logger: defLogger{},
	}
}

func (h *VerificationRequestHandler) WithMailer(m Mailer) *VerificationRequestHandler {
	h.mailer = normalizeMailer(m)
	return h
}

func (h *VerificationRequestHandler) WithLogger(logger Logger) *VerificationRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerificationRequestHandler) Execute(ctx context.Context, event VerificationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerificationRequestHandler) execute(ctx context.Context, event VerificationRequestMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification request")
	}

	if user.EmailVerified {
		return nil
	}

	token, err := h.tokens.IssueVerificationToken(ctx, user.ID)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
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

	return nil
}
