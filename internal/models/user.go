package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role names assigned through the invitation allow-list.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User describes a platform account. Accounts are only ever created for
// invited email addresses and are soft-deactivated, never hard-deleted, so
// that audit history and content ownership survive.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `gorm:"not null" json:"-"`
	Role        string `gorm:"not null;default:user" json:"role"`

	EmailVerified bool `gorm:"default:false" json:"email_verified"`

	// TOTPSecret holds the AES-256-GCM encrypted shared secret. A non-empty
	// secret with TOTPEnabled false means enrollment is still in progress and
	// must never satisfy the second factor on its own.
	TOTPSecret  *string `json:"-"`
	TOTPEnabled bool    `gorm:"default:false" json:"totp_enabled"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	Sessions    []Session    `gorm:"foreignKey:UserID" json:"-"`
	BackupCodes []BackupCode `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
