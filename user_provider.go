package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// UserTracker is a store we can use to retrieve users and keep
// login attempt bookkeeping
type UserTracker interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserProvider resolves identities from the user store
type UserProvider struct {
	store     UserTracker
	Validator func(*User) error
	activity  ActivitySink
	logger    Logger
}

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker) *UserProvider {
	return &UserProvider{
		store:     store,
		logger:    defLogger{},
		activity:  noopActivitySink{},
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// WithActivitySink sets the sink notified on login success and failure.
func (u *UserProvider) WithActivitySink(sink ActivitySink) *UserProvider {
	u.activity = normalizeActivitySink(sink)
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// VerifyIdentity will find the user, compare the password, and return identity.
// Lookup misses and password mismatches collapse into the same error so a
// caller cannot probe which addresses exist.
func (u UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// too many attempts in the given window, cool off
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		u.recordLogin(ctx, ActivityEventLoginFailure, user)

		return nil, ErrMismatchedHashAndPassword
	}

	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	// reset the login_attempts counter and stamp last_login_at
	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login: %v", err)
	}

	u.recordLogin(ctx, ActivityEventLoginSuccess, user)

	return identityFromUser(user), nil
}

// FindIdentityByIdentifier resolves an identity without password verification
func (u UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := u.store.GetByEmail(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return identityFromUser(user), nil
}

func (u UserProvider) recordLogin(ctx context.Context, eventType ActivityEventType, user *User) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(u.activity).Record(ctx, event); err != nil {
		u.logger.Warn("activity sink error: %v", err)
	}
}

type authIdentity struct {
	id       string
	email    string
	userType UserType
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) Email() string {
	return a.email
}

func (a authIdentity) Type() UserType {
	if a.userType == "" {
		return UserTypeCentre
	}
	return a.userType
}

var _ Identity = authIdentity{}

func identityFromUser(user *User) authIdentity {
	return authIdentity{
		id:       user.ID.String(),
		email:    user.Email,
		userType: user.Type,
	}
}

func defaultValidator(u *User) error {
	if IsValidUserType(u.Type) {
		return nil
	}
	return errors.New("user has an unknown or invalid type", errors.CategoryAuth).
		WithTextCode("INVALID_USER_TYPE").
		WithMetadata(map[string]any{"type": u.Type, "user_id": u.ID.String()})
}

func ensureAuthenticatableUser(user *User) error {
	if user == nil {
		return ErrIdentityNotFound
	}

	user.EnsureValidationStatus()
	return nil
}
