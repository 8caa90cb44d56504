package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserType determines dashboard routing and maintenance mode bypass
type UserType = string

const (
	// UserTypeCentre is a certification centre account
	UserTypeCentre UserType = "centre"
	// UserTypeJury is a jury member account
	UserTypeJury UserType = "jury"
	// UserTypeAdmin is a platform administrator, the only type that bypasses
	// maintenance mode
	UserTypeAdmin UserType = "admin"
)

// ValidationStatus is the account review status set by administrators. The
// auth core reads it for post login routing and never mutates it directly.
type ValidationStatus = string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
	ValidationRejected  ValidationStatus = "rejected"
)

// User is the user model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Type             UserType         `bun:"user_type,notnull" json:"user_type,omitempty"`
	Email            string           `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone            string           `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash     string           `bun:"password_hash" json:"-"`
	EmailVerified    bool             `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	ProfileCompleted bool             `bun:"profile_completed" json:"profile_completed,omitempty"`
	ValidationStatus ValidationStatus `bun:"validation_status,notnull,default:'pending'" json:"validation_status,omitempty"`
	LoginAttempts    int              `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt   *time.Time       `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastLoginAt      *time.Time       `bun:"last_login_at" json:"last_login_at,omitempty"`
	Metadata         map[string]any   `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt        *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time       `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time       `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// EnsureValidationStatus backfills the zero value for records created before
// the review flow existed.
func (u *User) EnsureValidationStatus() {
	if u.ValidationStatus == "" {
		u.ValidationStatus = ValidationPending
	}
}

// SingleUseTokenType discriminates rows in the auth_tokens table
type SingleUseTokenType = string

const (
	// TokenTypeEmailVerification marks tokens sent in verification emails
	TokenTypeEmailVerification SingleUseTokenType = "email_verification"
	// TokenTypePasswordReset marks tokens sent in password reset emails
	TokenTypePasswordReset SingleUseTokenType = "password_reset"
)

// SingleUseToken is an append only record keyed by the opaque token value.
// Consumption sets ConsumedAt exactly once; rows are never deleted so the
// table doubles as an audit trail.
type SingleUseToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:tok"`
	ID            uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string             `bun:"token,notnull,unique" json:"-"`
	Type          SingleUseTokenType `bun:"token_type,notnull" json:"token_type,omitempty"`
	UserID        uuid.UUID          `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User              `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CreatedAt     *time.Time         `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     *time.Time         `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time         `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
}

// SystemSettings is the maintenance singleton. Exactly one logical row; a
// missing row means maintenance mode is off.
type SystemSettings struct {
	bun.BaseModel      `bun:"table:system_settings,alias:sys"`
	ID                 int64      `bun:"id,pk" json:"id,omitempty"`
	MaintenanceMode    bool       `bun:"maintenance_mode" json:"maintenance_mode"`
	MaintenanceMessage string     `bun:"maintenance_message,nullzero" json:"maintenance_message,omitempty"`
	LastModifiedBy     *uuid.UUID `bun:"last_modified_by,nullzero,type:uuid" json:"last_modified_by,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SystemSettingsID is the primary key of the single logical settings row
const SystemSettingsID int64 = 1
