package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-gate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// finalizeTokens fakes the consumption path of the token repository.
type finalizeTokens struct {
	auth.SingleUseTokens
	record        *auth.SingleUseToken
	consumeErr    error
	consumedToken string
	consumedType  auth.SingleUseTokenType
}

func (f *finalizeTokens) ConsumeTx(ctx context.Context, tx bun.IDB, token string, tokenType auth.SingleUseTokenType, now time.Time) (*auth.SingleUseToken, error) {
	f.consumedToken = token
	f.consumedType = tokenType
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.record, nil
}

type finalizeUsers struct {
	auth.Users
	resetUserID uuid.UUID
	resetHash   string
	resetErr    error
}

func (f *finalizeUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	f.resetUserID = id
	f.resetHash = passwordHash
	return f.resetErr
}

type finalizeRepo struct {
	auth.RepositoryManager
	tokens *finalizeTokens
	users  *finalizeUsers
}

func (r *finalizeRepo) Tokens() auth.SingleUseTokens { return r.tokens }
func (r *finalizeRepo) Users() auth.Users            { return r.users }

func (r *finalizeRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func newFinalizeRepo(tokens *finalizeTokens, users *finalizeUsers) *finalizeRepo {
	return &finalizeRepo{tokens: tokens, users: users}
}

func TestFinalizePasswordResetHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes the token and swaps the password hash", func(t *testing.T) {
		userID := uuid.New()
		tokens := &finalizeTokens{record: &auth.SingleUseToken{
			ID:     uuid.New(),
			Token:  "reset-token",
			Type:   auth.TokenTypePasswordReset,
			UserID: userID,
		}}
		users := &finalizeUsers{}

		var recorded []auth.ActivityEvent
		sink := auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
			recorded = append(recorded, event)
			return nil
		})

		manager := auth.NewSingleUseTokenManager(newFinalizeRepo(tokens, users)).
			WithActivitySink(sink)

		handler := auth.NewFinalizePasswordResetHandler(manager).
			WithLogger(quietLogger{})

		err := handler.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    "reset-token",
			Password: "brand-new-password",
		})
		require.NoError(t, err)

		assert.Equal(t, "reset-token", tokens.consumedToken)
		assert.Equal(t, auth.TokenTypePasswordReset, tokens.consumedType)
		assert.Equal(t, userID, users.resetUserID)
		require.NotEmpty(t, users.resetHash)
		assert.NoError(t, auth.ComparePasswordAndHash("brand-new-password", users.resetHash))

		require.Len(t, recorded, 1)
		assert.Equal(t, auth.ActivityEventPasswordResetSuccess, recorded[0].EventType)
		assert.Equal(t, userID.String(), recorded[0].UserID)
	})

	t.Run("unknown token reports not found without touching the user", func(t *testing.T) {
		tokens := &finalizeTokens{consumeErr: auth.ErrTokenNotFound}
		users := &finalizeUsers{}

		manager := auth.NewSingleUseTokenManager(newFinalizeRepo(tokens, users))
		handler := auth.NewFinalizePasswordResetHandler(manager)

		err := handler.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    "stale-token",
			Password: "brand-new-password",
		})
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryNotFound, richErr.Category)
		assert.Equal(t, auth.TextCodeTokenNotFound, richErr.TextCode)

		assert.Equal(t, uuid.Nil, users.resetUserID)
	})

	t.Run("cancelled context short circuits", func(t *testing.T) {
		tokens := &finalizeTokens{}
		users := &finalizeUsers{}

		manager := auth.NewSingleUseTokenManager(newFinalizeRepo(tokens, users))
		handler := auth.NewFinalizePasswordResetHandler(manager)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := handler.Execute(cancelled, auth.FinalizePasswordResetMessage{
			Token:    "reset-token",
			Password: "brand-new-password",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, tokens.consumedToken)
	})
}
