package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubUsers overrides the single repository method the state machine
// touches. Any other call panics through the embedded nil interface.
type stubUsers struct {
	auth.Users
	updateCalls int
	lastStatus  auth.ValidationStatus
	returned    *auth.User
	err         error
}

func (s *stubUsers) UpdateValidationStatus(ctx context.Context, id uuid.UUID, status auth.ValidationStatus) (*auth.User, error) {
	s.updateCalls++
	s.lastStatus = status
	if s.err != nil {
		return nil, s.err
	}
	if s.returned != nil {
		return s.returned, nil
	}
	return &auth.User{ID: id, ValidationStatus: status}, nil
}

func TestAccountStateMachineApprovesPendingAccount(t *testing.T) {
	repo := &stubUsers{}
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationPending,
	}

	sm := auth.NewAccountStateMachine(repo)

	result, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.ValidationValidated)
	require.NoError(t, err)
	assert.Equal(t, auth.ValidationValidated, result.ValidationStatus)
	assert.Equal(t, auth.ValidationValidated, repo.lastStatus)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestAccountStateMachineRejectsPendingAccount(t *testing.T) {
	repo := &stubUsers{}
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationPending,
	}

	sm := auth.NewAccountStateMachine(repo)

	result, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.ValidationRejected)
	require.NoError(t, err)
	assert.Equal(t, auth.ValidationRejected, result.ValidationStatus)
}

func TestAccountStateMachineSameStatusIsNoOp(t *testing.T) {
	repo := &stubUsers{}
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationValidated,
	}

	sm := auth.NewAccountStateMachine(repo)

	result, err := sm.Transition(context.Background(), auth.ActorRef{}, user, auth.ValidationValidated)
	require.NoError(t, err)
	assert.Same(t, user, result)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestAccountStateMachineReviewedAccountsAreTerminal(t *testing.T) {
	repo := &stubUsers{}
	sm := auth.NewAccountStateMachine(repo)

	for _, from := range []auth.ValidationStatus{auth.ValidationValidated, auth.ValidationRejected} {
		user := &auth.User{
			ID:               uuid.New(),
			ValidationStatus: from,
		}

		_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.ValidationPending)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrTerminalState)
	}
	assert.Equal(t, 0, repo.updateCalls)
}

func TestAccountStateMachineForceBypassesTerminalGuard(t *testing.T) {
	repo := &stubUsers{}
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationRejected,
	}

	sm := auth.NewAccountStateMachine(repo)

	result, err := sm.Transition(
		context.Background(),
		auth.ActorRef{ID: "admin"},
		user,
		auth.ValidationPending,
		auth.WithForceTransition(),
	)
	require.NoError(t, err)
	assert.Equal(t, auth.ValidationPending, result.ValidationStatus)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestAccountStateMachineRejectsBadInput(t *testing.T) {
	repo := &stubUsers{}
	sm := auth.NewAccountStateMachine(repo)

	t.Run("nil user", func(t *testing.T) {
		_, err := sm.Transition(context.Background(), auth.ActorRef{}, nil, auth.ValidationValidated)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidTransition)
	})

	t.Run("empty target", func(t *testing.T) {
		user := &auth.User{ID: uuid.New(), ValidationStatus: auth.ValidationPending}
		_, err := sm.Transition(context.Background(), auth.ActorRef{}, user, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidTransition)
	})

	assert.Equal(t, 0, repo.updateCalls)
}

func TestAccountStateMachineRunsHooksWithMetadata(t *testing.T) {
	repo := &stubUsers{}
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationPending,
	}

	var beforeCalled, afterCalled bool
	var reasonSeen string
	var metadataSeen map[string]any

	before := func(ctx context.Context, tc auth.TransitionContext) error {
		beforeCalled = true
		reasonSeen = tc.Meta.Reason
		metadataSeen = tc.Meta.Metadata
		return nil
	}
	after := func(ctx context.Context, tc auth.TransitionContext) error {
		afterCalled = true
		return nil
	}

	sm := auth.NewAccountStateMachine(repo)

	_, err := sm.Transition(
		context.Background(),
		auth.ActorRef{ID: "admin"},
		user,
		auth.ValidationValidated,
		auth.WithTransitionReason("documents checked"),
		auth.WithTransitionMetadata(map[string]any{"ticket": "123"}),
		auth.WithBeforeTransitionHook(before),
		auth.WithAfterTransitionHook(after),
	)
	require.NoError(t, err)
	assert.True(t, beforeCalled)
	assert.True(t, afterCalled)
	assert.Equal(t, "documents checked", reasonSeen)
	require.NotNil(t, metadataSeen)
	assert.Equal(t, "123", metadataSeen["ticket"])
}

func TestAccountStateMachineHookErrorHandlerIntercepts(t *testing.T) {
	repo := &stubUsers{}
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationPending,
	}

	var phaseSeen auth.TransitionHookPhase
	handler := func(ctx context.Context, phase auth.TransitionHookPhase, err error, tc auth.TransitionContext) error {
		phaseSeen = phase
		return auth.ErrInvalidTransition
	}

	sm := auth.NewAccountStateMachine(repo, auth.WithStateMachineHookErrorHandler(handler))

	_, err := sm.Transition(
		context.Background(),
		auth.ActorRef{ID: "admin"},
		user,
		auth.ValidationValidated,
		auth.WithBeforeTransitionHook(func(ctx context.Context, tc auth.TransitionContext) error {
			return assert.AnError
		}),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition)
	assert.Equal(t, auth.HookPhaseBefore, phaseSeen)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestAccountStateMachineEmitsActivityEvent(t *testing.T) {
	repo := &stubUsers{}
	now := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	user := &auth.User{
		ID:               uuid.New(),
		ValidationStatus: auth.ValidationPending,
	}

	var recorded []auth.ActivityEvent
	sink := auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		recorded = append(recorded, event)
		return nil
	})

	sm := auth.NewAccountStateMachine(
		repo,
		auth.WithStateMachineClock(func() time.Time { return now }),
		auth.WithStateMachineActivitySink(sink),
	)

	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.ValidationValidated,
		auth.WithTransitionReason("documents checked"))
	require.NoError(t, err)

	require.Len(t, recorded, 1)
	evt := recorded[0]
	assert.Equal(t, auth.ActivityEventAccountStatusChanged, evt.EventType)
	assert.Equal(t, user.ID.String(), evt.UserID)
	assert.Equal(t, auth.ValidationPending, evt.FromStatus)
	assert.Equal(t, auth.ValidationValidated, evt.ToStatus)
	assert.Equal(t, "admin", evt.Actor.ID)
	assert.Equal(t, now, evt.OccurredAt)
	assert.Equal(t, "documents checked", evt.Metadata["reason"])
}

func TestAccountStateMachineCurrentStatus(t *testing.T) {
	sm := auth.NewAccountStateMachine(&stubUsers{})

	assert.Equal(t, auth.ValidationStatus(""), sm.CurrentStatus(nil))
	assert.Equal(t, auth.ValidationPending, sm.CurrentStatus(&auth.User{}))
	assert.Equal(t, auth.ValidationRejected, sm.CurrentStatus(&auth.User{ValidationStatus: auth.ValidationRejected}))
}
