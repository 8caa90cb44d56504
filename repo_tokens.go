package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SingleUseTokens persists the append only auth_tokens table. Consumption and
// invalidation are the same atomic update: the WHERE consumed_at IS NULL
// predicate guarantees exactly one of N concurrent consumers wins.
type SingleUseTokens interface {
	repository.Repository[*SingleUseToken]

	Issue(ctx context.Context, record *SingleUseToken) (*SingleUseToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, record *SingleUseToken) (*SingleUseToken, error)

	Consume(ctx context.Context, token string, tokenType SingleUseTokenType, now time.Time) (*SingleUseToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, token string, tokenType SingleUseTokenType, now time.Time) (*SingleUseToken, error)

	SupersedeOpenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, tokenType SingleUseTokenType, now time.Time) error
}

type singleUseTokens struct {
	repository.Repository[*SingleUseToken]
	db *bun.DB
}

var _ SingleUseTokens = (*singleUseTokens)(nil)

func NewSingleUseTokensRepository(db *bun.DB) SingleUseTokens {
	repo := repository.NewRepository[*SingleUseToken](db, repository.ModelHandlers[*SingleUseToken]{
		NewRecord: func() *SingleUseToken { return &SingleUseToken{} },
		GetID: func(t *SingleUseToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *SingleUseToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &singleUseTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *singleUseTokens) Issue(ctx context.Context, record *SingleUseToken) (*SingleUseToken, error) {
	return r.IssueTx(ctx, r.db, record)
}

// IssueTx closes any open token of the same type for the same user before
// inserting the replacement, so at most one token per (user, type) is live.
func (r *singleUseTokens) IssueTx(ctx context.Context, tx bun.IDB, record *SingleUseToken) (*SingleUseToken, error) {
	now := time.Now()
	if err := r.SupersedeOpenTx(ctx, tx, record.UserID, record.Type, now); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede open tokens")
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *singleUseTokens) Consume(ctx context.Context, token string, tokenType SingleUseTokenType, now time.Time) (*SingleUseToken, error) {
	return r.ConsumeTx(ctx, r.db, token, tokenType, now)
}

// ConsumeTx is the single atomic step that both validates and invalidates a
// token. Expired rows fail the predicate the same way absent rows do, the
// caller cannot tell the difference.
func (r *singleUseTokens) ConsumeTx(ctx context.Context, tx bun.IDB, token string, tokenType SingleUseTokenType, now time.Time) (*SingleUseToken, error) {
	record := &SingleUseToken{}

	err := tx.NewUpdate().Model(record).
		Set("consumed_at = ?", now).
		Where("token = ?", token).
		Where("token_type = ?", tokenType).
		Where("consumed_at IS NULL").
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Returning("*").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}

	return record, nil
}

// SupersedeOpenTx marks still open tokens as consumed without honoring them.
// The audit trail keeps the rows, consumed_at simply records when they were
// replaced.
func (r *singleUseTokens) SupersedeOpenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, tokenType SingleUseTokenType, now time.Time) error {
	_, err := tx.NewUpdate().Model((*SingleUseToken)(nil)).
		Set("consumed_at = ?", now).
		Where("user_id = ?", userID).
		Where("token_type = ?", tokenType).
		Where("consumed_at IS NULL").
		Exec(ctx)
	return err
}
