package auth

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// SecurityContextKey is the connection local configuration key read by the
// row level security policies at query time.
const SecurityContextKey = "app.current_user_id"

// SecurityMarker attaches and detaches the identity marker on the same
// connection or transaction that will execute the scoped data access. A
// process wide marker would leak identities across concurrent requests, so
// no such implementation exists here.
type SecurityMarker interface {
	Apply(ctx context.Context, tx bun.IDB, userID string) error
}

// SecurityMarkerFunc adapts a function into a SecurityMarker.
type SecurityMarkerFunc func(ctx context.Context, tx bun.IDB, userID string) error

func (f SecurityMarkerFunc) Apply(ctx context.Context, tx bun.IDB, userID string) error {
	if f == nil {
		return nil
	}
	return f(ctx, tx, userID)
}

// PostgresSecurityMarker sets the marker with set_config(..., true). The
// third argument makes the setting transaction local: it is discarded when
// the transaction commits or rolls back, so every exit path clears it before
// the connection returns to the pool.
func PostgresSecurityMarker() SecurityMarker {
	return SecurityMarkerFunc(func(ctx context.Context, tx bun.IDB, userID string) error {
		_, err := tx.NewRaw("SELECT set_config(?, ?, TRUE)", SecurityContextKey, userID).Exec(ctx)
		return err
	})
}

// SecurityContext scopes data access to an authenticated identity. RunAs is
// the only way to attach the marker, which keeps acquisition and release in
// one place.
type SecurityContext struct {
	db     *bun.DB
	marker SecurityMarker
	logger Logger
}

// NewSecurityContext returns a propagator bound to the given database. The
// Postgres marker is the default.
func NewSecurityContext(db *bun.DB) *SecurityContext {
	return &SecurityContext{
		db:     db,
		marker: PostgresSecurityMarker(),
		logger: defLogger{},
	}
}

// WithMarker overrides how the marker reaches the connection. Tests and non
// Postgres dialects use this.
func (s *SecurityContext) WithMarker(marker SecurityMarker) *SecurityContext {
	if marker != nil {
		s.marker = marker
	}
	return s
}

func (s *SecurityContext) WithLogger(logger Logger) *SecurityContext {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// RunAs executes fn inside a transaction with the security marker applied to
// that same transaction. The marker never outlives the transaction, and the
// context handed to fn carries the identity for in process checks.
func (s *SecurityContext) RunAs(ctx context.Context, userID string, fn func(ctx context.Context, tx bun.Tx) error) error {
	if userID == "" {
		return goerrors.New("security context requires a user id", goerrors.CategoryBadInput)
	}

	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.marker.Apply(ctx, tx, userID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply security context marker")
		}

		return fn(WithIdentity(ctx, userID), tx)
	})
}
