package models

import "time"

// BackupCode is a single-use recovery credential. Only the bcrypt hash is
// stored; the plaintext batch is shown to the owner exactly once at
// generation. A non-null UsedAt permanently retires the code.
type BackupCode struct {
	BaseModel

	UserID   string     `gorm:"type:uuid;not null;index" json:"user_id"`
	CodeHash string     `gorm:"not null" json:"-"`
	UsedAt   *time.Time `json:"used_at"`
}
