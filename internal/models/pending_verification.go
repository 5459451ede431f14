package models

import "time"

// VerificationKind tags the next step an in-flight authentication attempt is
// waiting on.
type VerificationKind string

const (
	// VerificationEmail waits on the emailed confirmation link.
	VerificationEmail VerificationKind = "email"
	// VerificationTOTPSetup waits on the first code from a freshly provisioned
	// authenticator.
	VerificationTOTPSetup VerificationKind = "totp_setup"
	// VerificationTOTPVerify waits on a code from an enrolled authenticator or
	// a backup code.
	VerificationTOTPVerify VerificationKind = "totp_verify"
)

// PendingVerification is the transient record between credential submission
// and a minted session. At most one exists per user; starting a new attempt
// replaces it, and completion consumes it in a single conditional delete so
// two racing completions cannot both mint a session.
type PendingVerification struct {
	BaseModel

	UserID    string           `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User            `gorm:"foreignKey:UserID" json:"-"`
	Kind      VerificationKind `gorm:"not null" json:"kind"`
	TokenHash string           `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time        `gorm:"index" json:"expires_at"`
}

// Expired reports whether the attempt has lapsed back to anonymous.
func (p *PendingVerification) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
