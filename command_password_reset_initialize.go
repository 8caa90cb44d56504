package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Success bool
}

// InitializePasswordResetHandler issues a reset token and emails the link.
// The response is identical whether or not the address exists.
type InitializePasswordResetHandler struct {
	tokens   *SingleUseTokenManager
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

func NewInitializePasswordResetHandler(tokens *SingleUseTokenManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		tokens:   tokens,
		mailer:   NoopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithMailer(m Mailer) *InitializePasswordResetHandler {
	h.mailer = normalizeMailer(m)
	return h
}

// WithActivitySink sets the sink used to emit reset request events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := h.tokens.IssueResetToken(ctx, event.Email)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	// empty token means the address is unknown, respond as if it worked
	if token != "" {
		h.recordActivity(ctx, event.Email)

		err = h.mailer.Send(ctx, MailMessage{
			To:       event.Email,
			Template: MailTemplatePasswordReset,
			Params: map[string]any{
				"token": token,
				"link":  "/password-reset/" + token,
			},
		})
		if err != nil {
			h.logger.Error("failed to send password reset email to %s: %v", event.Email, err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{Success: true})
	}

	return nil
}

func (h *InitializePasswordResetHandler) recordActivity(ctx context.Context, email string) {
	event := ActivityEvent{
		EventType:  ActivityEventPasswordResetRequest,
		Actor:      ActorRef{Type: "user"},
		Metadata:   map[string]any{"email": email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset request: %v", err)
	}
}
