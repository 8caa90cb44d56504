package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// MaintenanceService reads and toggles the maintenance flag. Reads happen on
// every gated request, toggles are restricted to admin actors.
type MaintenanceService struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

var _ MaintenanceProvider = (*MaintenanceService)(nil)

func NewMaintenanceService(repo RepositoryManager) *MaintenanceService {
	return &MaintenanceService{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (m *MaintenanceService) WithActivitySink(sink ActivitySink) *MaintenanceService {
	m.activity = normalizeActivitySink(sink)
	return m
}

func (m *MaintenanceService) WithLogger(logger Logger) *MaintenanceService {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// MaintenanceState reads the flag fresh from the store. No caching: a toggle
// must be visible on the next request.
func (m *MaintenanceService) MaintenanceState(ctx context.Context) (MaintenanceState, error) {
	record, err := m.repo.Settings().Get(ctx)
	if err != nil {
		return MaintenanceState{}, err
	}

	return MaintenanceState{
		Enabled: record.MaintenanceMode,
		Message: record.MaintenanceMessage,
	}, nil
}

// SetMaintenance toggles the flag. The actor must resolve to an admin
// account, anyone else gets ErrForbidden.
func (m *MaintenanceService) SetMaintenance(ctx context.Context, actor uuid.UUID, enabled bool, message string) (*SystemSettings, error) {
	user, err := m.repo.Users().GetByID(ctx, actor.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrForbidden
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve maintenance actor")
	}

	if !IsAdminType(user.Type) {
		return nil, ErrForbidden
	}

	record, err := m.repo.Settings().SetMaintenance(ctx, enabled, message, actor)
	if err != nil {
		return nil, err
	}

	event := ActivityEvent{
		EventType: ActivityEventMaintenanceToggled,
		Actor:     ActorRef{ID: actor.String(), Type: "admin"},
		UserID:    actor.String(),
		Metadata: map[string]any{
			"enabled": enabled,
			"message": message,
		},
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(m.activity).Record(ctx, event); err != nil {
		m.logger.Warn("activity sink error: %v", err)
	}

	return record, nil
}

// StoreAdminVerifier answers admin checks against the live user row so a
// demoted admin loses maintenance access immediately, not at token renewal.
type StoreAdminVerifier struct {
	users Users
}

var _ AdminVerifier = (*StoreAdminVerifier)(nil)

func NewStoreAdminVerifier(users Users) *StoreAdminVerifier {
	return &StoreAdminVerifier{users: users}
}

func (v *StoreAdminVerifier) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return IsAdminType(user.Type), nil
}
