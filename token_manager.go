package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// singleUseTokenBytes is the entropy of a generated token before encoding
const singleUseTokenBytes = 32

// DefaultResetTokenTTL bounds how long a password reset link stays usable
var DefaultResetTokenTTL = 24 * time.Hour

// SingleUseTokenManager issues and consumes verification and reset tokens.
// All consumption paths funnel into the repository's atomic update, the
// manager itself never does read-then-write on token state.
type SingleUseTokenManager struct {
	repo     RepositoryManager
	resetTTL time.Duration
	activity ActivitySink
	logger   Logger
}

// NewSingleUseTokenManager creates a manager with sane defaults.
func NewSingleUseTokenManager(repo RepositoryManager) *SingleUseTokenManager {
	return &SingleUseTokenManager{
		repo:     repo,
		resetTTL: DefaultResetTokenTTL,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithResetTokenTTL overrides the reset link lifetime.
func (m *SingleUseTokenManager) WithResetTokenTTL(ttl time.Duration) *SingleUseTokenManager {
	if ttl > 0 {
		m.resetTTL = ttl
	}
	return m
}

// WithActivitySink sets the sink used to emit token lifecycle events.
func (m *SingleUseTokenManager) WithActivitySink(sink ActivitySink) *SingleUseTokenManager {
	m.activity = normalizeActivitySink(sink)
	return m
}

// WithLogger overrides the logger used by the manager.
func (m *SingleUseTokenManager) WithLogger(logger Logger) *SingleUseTokenManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// IssueVerificationToken generates a fresh email verification token for the
// user. Any previously issued verification token is superseded in the same
// transaction.
func (m *SingleUseTokenManager) IssueVerificationToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := generateOpaqueToken()
	if err != nil {
		return "", err
	}

	err = m.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record := &SingleUseToken{
			Token:  token,
			Type:   TokenTypeEmailVerification,
			UserID: userID,
		}
		_, err := m.repo.Tokens().IssueTx(ctx, tx, record)
		return err
	})

	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
	}

	return token, nil
}

// ConsumeVerificationToken atomically clears the token and marks the user's
// email verified in the same transaction. A second concurrent consumer of the
// same token observes ErrTokenNotFound because the winner already cleared it.
func (m *SingleUseTokenManager) ConsumeVerificationToken(ctx context.Context, token string) (uuid.UUID, error) {
	var userID uuid.UUID

	err := m.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record, err := m.repo.Tokens().ConsumeTx(ctx, tx, token, TokenTypeEmailVerification, time.Now())
		if err != nil {
			return err
		}

		userID = record.UserID
		return m.repo.Users().MarkEmailVerifiedTx(ctx, tx, record.UserID)
	})

	if err != nil {
		if IsTokenNotFoundError(err) {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}

	m.recordActivity(ctx, ActivityEventEmailVerified, userID, nil)

	return userID, nil
}

// IssueResetToken generates a password reset token for the account matching
// the email. When no account matches it returns empty with no error, callers
// must not be able to learn whether the address exists.
func (m *SingleUseTokenManager) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user for password reset")
	}

	token, err := generateOpaqueToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(m.resetTTL)

	err = m.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record := &SingleUseToken{
			Token:     token,
			Type:      TokenTypePasswordReset,
			UserID:    user.ID,
			ExpiresAt: &expiresAt,
		}
		_, err := m.repo.Tokens().IssueTx(ctx, tx, record)
		return err
	})

	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue reset token")
	}

	return token, nil
}

// ConsumeResetToken fails closed: expired and absent tokens are handled
// identically. On success the new password hash lands in the same
// transaction that consumes the token.
func (m *SingleUseTokenManager) ConsumeResetToken(ctx context.Context, token, newPassword string) (bool, error) {
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	var userID uuid.UUID

	err = m.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record, err := m.repo.Tokens().ConsumeTx(ctx, tx, token, TokenTypePasswordReset, time.Now())
		if err != nil {
			return err
		}

		userID = record.UserID
		return m.repo.Users().ResetPasswordTx(ctx, tx, record.UserID, passwordHash)
	})

	if err != nil {
		if IsTokenNotFoundError(err) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	m.recordActivity(ctx, ActivityEventPasswordResetSuccess, userID, nil)

	return true, nil
}

func (m *SingleUseTokenManager) recordActivity(ctx context.Context, eventType ActivityEventType, userID uuid.UUID, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor: ActorRef{
			ID:   userID.String(),
			Type: "user",
		},
		UserID:     userID.String(),
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(m.activity).Record(ctx, event); err != nil {
		m.logger.Warn("activity sink error: %v", err)
	}
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, singleUseTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token entropy")
	}
	return hex.EncodeToString(buf), nil
}
