package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" example:"9f2c..." doc:"Email verification token"`
	OnResponse func(userID uuid.UUID)
}

func (p VerifyEmailMessage) Type() string { return "user.verify_email" }

// VerifyEmailHandler consumes a verification token and flips the account's
// verified flag. The two writes share one transaction inside the manager.
type VerifyEmailHandler struct {
	tokens *SingleUseTokenManager
	logger Logger
}

func NewVerifyEmailHandler(tokens *SingleUseTokenManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		tokens: tokens,
		logger: defLogger{},
	}
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := h.tokens.ConsumeVerificationToken(ctx, event.Token)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify email")
	}

	if event.OnResponse != nil {
		event.OnResponse(userID)
	}

	return nil
}
