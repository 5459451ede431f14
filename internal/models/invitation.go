package models

// Invitation is one allow-list entry: the email may hold an account with the
// given role. The table is read-only at runtime and seeded from configuration
// at startup.
type Invitation struct {
	Email string `gorm:"primaryKey" json:"email"`
	Role  string `gorm:"not null;default:user" json:"role"`
}
