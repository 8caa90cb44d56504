package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type tmTokens struct {
	SingleUseTokens
	issued        []*SingleUseToken
	consumeRecord *SingleUseToken
	consumeErr    error
	consumedToken string
	consumedType  SingleUseTokenType
}

func (s *tmTokens) IssueTx(ctx context.Context, tx bun.IDB, record *SingleUseToken) (*SingleUseToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.issued = append(s.issued, record)
	return record, nil
}

func (s *tmTokens) ConsumeTx(ctx context.Context, tx bun.IDB, token string, tokenType SingleUseTokenType, now time.Time) (*SingleUseToken, error) {
	s.consumedToken = token
	s.consumedType = tokenType
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	return s.consumeRecord, nil
}

type tmUsers struct {
	Users
	user       *User
	getErr     error
	verifiedID uuid.UUID
	resetID    uuid.UUID
	resetHash  string
}

func (s *tmUsers) GetByEmail(ctx context.Context, email string) (*User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.user, nil
}

func (s *tmUsers) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	s.verifiedID = id
	return nil
}

func (s *tmUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	s.resetID = id
	s.resetHash = passwordHash
	return nil
}

type tmRepo struct {
	RepositoryManager
	tokens *tmTokens
	users  *tmUsers
}

func (r *tmRepo) Tokens() SingleUseTokens { return r.tokens }
func (r *tmRepo) Users() Users            { return r.users }

func (r *tmRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func TestIssueVerificationToken(t *testing.T) {
	tokens := &tmTokens{}
	manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: &tmUsers{}})

	userID := uuid.New()
	token, err := manager.IssueVerificationToken(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, token, singleUseTokenBytes*2)

	require.Len(t, tokens.issued, 1)
	record := tokens.issued[0]
	assert.Equal(t, token, record.Token)
	assert.Equal(t, TokenTypeEmailVerification, record.Type)
	assert.Equal(t, userID, record.UserID)
	assert.Nil(t, record.ExpiresAt)
}

func TestConsumeVerificationToken(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the email verified in the same transaction", func(t *testing.T) {
		userID := uuid.New()
		tokens := &tmTokens{consumeRecord: &SingleUseToken{
			ID:     uuid.New(),
			Token:  "verify-token",
			Type:   TokenTypeEmailVerification,
			UserID: userID,
		}}
		users := &tmUsers{}

		var recorded []ActivityEvent
		sink := ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
			recorded = append(recorded, event)
			return nil
		})

		manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: users}).
			WithActivitySink(sink)

		got, err := manager.ConsumeVerificationToken(ctx, "verify-token")
		require.NoError(t, err)
		assert.Equal(t, userID, got)
		assert.Equal(t, "verify-token", tokens.consumedToken)
		assert.Equal(t, TokenTypeEmailVerification, tokens.consumedType)
		assert.Equal(t, userID, users.verifiedID)

		require.Len(t, recorded, 1)
		assert.Equal(t, ActivityEventEmailVerified, recorded[0].EventType)
		assert.Equal(t, userID.String(), recorded[0].UserID)
	})

	t.Run("unknown token leaves the user untouched", func(t *testing.T) {
		tokens := &tmTokens{consumeErr: ErrTokenNotFound}
		users := &tmUsers{}

		manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: users})

		got, err := manager.ConsumeVerificationToken(ctx, "stale-token")
		assert.ErrorIs(t, err, ErrTokenNotFound)
		assert.Equal(t, uuid.Nil, got)
		assert.Equal(t, uuid.Nil, users.verifiedID)
	})
}

func TestIssueResetToken(t *testing.T) {
	ctx := context.Background()

	t.Run("default lifetime", func(t *testing.T) {
		user := &User{ID: uuid.New(), Email: "reset@example.com"}
		tokens := &tmTokens{}
		manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: &tmUsers{user: user}})

		token, err := manager.IssueResetToken(ctx, "reset@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		require.Len(t, tokens.issued, 1)
		record := tokens.issued[0]
		assert.Equal(t, TokenTypePasswordReset, record.Type)
		assert.Equal(t, user.ID, record.UserID)
		require.NotNil(t, record.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(DefaultResetTokenTTL), *record.ExpiresAt, 2*time.Second)
	})

	t.Run("custom lifetime", func(t *testing.T) {
		user := &User{ID: uuid.New(), Email: "reset@example.com"}
		tokens := &tmTokens{}
		manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: &tmUsers{user: user}}).
			WithResetTokenTTL(time.Hour)

		_, err := manager.IssueResetToken(ctx, "reset@example.com")
		require.NoError(t, err)

		require.Len(t, tokens.issued, 1)
		require.NotNil(t, tokens.issued[0].ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(time.Hour), *tokens.issued[0].ExpiresAt, 2*time.Second)
	})

	t.Run("unknown address is indistinguishable from success", func(t *testing.T) {
		tokens := &tmTokens{}
		manager := NewSingleUseTokenManager(&tmRepo{
			tokens: tokens,
			users:  &tmUsers{getErr: repository.NewRecordNotFound()},
		})

		token, err := manager.IssueResetToken(ctx, "nobody@example.com")
		assert.NoError(t, err)
		assert.Empty(t, token)
		assert.Empty(t, tokens.issued)
	})

	t.Run("store failures surface", func(t *testing.T) {
		manager := NewSingleUseTokenManager(&tmRepo{
			tokens: &tmTokens{},
			users:  &tmUsers{getErr: errors.New("connection refused")},
		})

		_, err := manager.IssueResetToken(ctx, "reset@example.com")
		assert.Error(t, err)
	})
}

func TestConsumeResetToken(t *testing.T) {
	ctx := context.Background()

	t.Run("swaps the hash for the token owner", func(t *testing.T) {
		userID := uuid.New()
		tokens := &tmTokens{consumeRecord: &SingleUseToken{
			ID:     uuid.New(),
			Token:  "reset-token",
			Type:   TokenTypePasswordReset,
			UserID: userID,
		}}
		users := &tmUsers{}

		manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: users})

		ok, err := manager.ConsumeResetToken(ctx, "reset-token", "fresh-password-123")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, userID, users.resetID)
		assert.NoError(t, ComparePasswordAndHash("fresh-password-123", users.resetHash))
	})

	t.Run("expired and absent tokens look the same", func(t *testing.T) {
		tokens := &tmTokens{consumeErr: ErrTokenNotFound}
		users := &tmUsers{}

		manager := NewSingleUseTokenManager(&tmRepo{tokens: tokens, users: users})

		ok, err := manager.ConsumeResetToken(ctx, "stale-token", "fresh-password-123")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, uuid.Nil, users.resetID)
	})
}
