package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"9f2c..." doc:"Reset password token"`
	Password string `json:"password" example:"some_secret_word" doc:"New password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler consumes the reset token and stores the new
// password hash. Consumption and the hash swap share one transaction.
type FinalizePasswordResetHandler struct {
	tokens *SingleUseTokenManager
	logger Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(tokens *SingleUseTokenManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	ok, err := h.tokens.ConsumeResetToken(ctx, event.Token, event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	if !ok {
		return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
			WithTextCode(TextCodeTokenNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	return nil
}
