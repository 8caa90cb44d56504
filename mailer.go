package auth

import "context"

// MailMessage is a template driven outbound email. Rendering and delivery
// belong to the host application.
type MailMessage struct {
	To       string
	Template string
	Params   map[string]any
}

// Mailer delivers transactional email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailerFunc adapts a function into a Mailer.
type MailerFunc func(ctx context.Context, msg MailMessage) error

// Send satisfies the Mailer interface.
func (f MailerFunc) Send(ctx context.Context, msg MailMessage) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// NoopMailer discards messages. The default until a host wires delivery.
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, MailMessage) error {
	return nil
}

// LogMailer writes outbound mail to the logger, useful in development. Token
// bearing params are logged as-is so never use it in production.
type LogMailer struct {
	Logger Logger
}

func (m LogMailer) Send(_ context.Context, msg MailMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("mail to=%s template=%s params=%v", msg.To, msg.Template, msg.Params)
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return NoopMailer{}
	}
	return m
}

// Mail template names used by the auth commands.
const (
	MailTemplateVerifyEmail   = "auth/verify_email"
	MailTemplatePasswordReset = "auth/password_reset"
)
