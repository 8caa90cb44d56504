package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Settings reads and updates the maintenance singleton. The row is created
// lazily, a missing row reads as maintenance off.
type Settings interface {
	Get(ctx context.Context) (*SystemSettings, error)
	GetTx(ctx context.Context, tx bun.IDB) (*SystemSettings, error)
	SetMaintenance(ctx context.Context, enabled bool, message string, actor uuid.UUID) (*SystemSettings, error)
}

type settings struct {
	db *bun.DB
}

var _ Settings = (*settings)(nil)

func NewSettingsRepository(db *bun.DB) Settings {
	return &settings{db: db}
}

func (s *settings) Get(ctx context.Context) (*SystemSettings, error) {
	return s.GetTx(ctx, s.db)
}

func (s *settings) GetTx(ctx context.Context, tx bun.IDB) (*SystemSettings, error) {
	record := &SystemSettings{}
	err := tx.NewSelect().Model(record).
		Where("id = ?", SystemSettingsID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &SystemSettings{ID: SystemSettingsID}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read system settings")
	}

	return record, nil
}

// SetMaintenance upserts the singleton row. Callers are responsible for
// having checked the actor is an admin before invoking this.
func (s *settings) SetMaintenance(ctx context.Context, enabled bool, message string, actor uuid.UUID) (*SystemSettings, error) {
	now := time.Now()
	record := &SystemSettings{
		ID:                 SystemSettingsID,
		MaintenanceMode:    enabled,
		MaintenanceMessage: message,
		LastModifiedBy:     &actor,
		UpdatedAt:          &now,
	}

	_, err := s.db.NewInsert().Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("maintenance_mode = EXCLUDED.maintenance_mode").
		Set("maintenance_message = EXCLUDED.maintenance_message").
		Set("last_modified_by = EXCLUDED.last_modified_by").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update system settings")
	}

	return record, nil
}
