package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	Bio            string     `bun:"bio" json:"bio,omitempty"`
	ProfilePicture string     `bun:"profile_picture" json:"profile_picture,omitempty"`
	Active         bool       `bun:"is_active" json:"is_active,omitempty"`
	EmailConfirmed bool       `bun:"is_email_confirmed" json:"is_email_confirmed,omitempty"`
	IsStaff        bool       `bun:"is_staff" json:"is_staff,omitempty"`
	IsSuperuser    bool       `bun:"is_superuser" json:"is_superuser,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// NormalizeEmail lowercases and trims an email address so lookups and unique
// constraints operate on a canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TokenPurpose identifies what a confirmation token is good for
type TokenPurpose string

const (
	// PurposeEmailConfirm tokens activate a freshly registered account
	PurposeEmailConfirm TokenPurpose = "email_confirm"
	// PurposePasswordReset tokens authorize a one-time password change
	PurposePasswordReset TokenPurpose = "password_reset"
)

// IsValid checks the purpose is one of the known values
func (p TokenPurpose) IsValid() bool {
	switch p {
	case PurposeEmailConfirm, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// ConfirmationToken is a single-use, TTL-bound credential artifact. Only a
// digest of the raw value is stored; the raw value is handed out exactly once
// at issue time.
type ConfirmationToken struct {
	bun.BaseModel `bun:"table:confirmation_tokens,alias:ctk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User        `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	TokenHash     string       `bun:"token_hash,notnull,unique" json:"-"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	IssuedAt      time.Time    `bun:"issued_at,notnull" json:"issued_at,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Consumed reports whether the token was already used
func (t *ConfirmationToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// ExpiredAt reports whether the token is past its TTL at the given instant
func (t *ConfirmationToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
