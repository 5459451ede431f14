package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/crypto"
)

var (
	// ErrUserNotFound indicates no user record matches the lookup.
	ErrUserNotFound = errors.New("store: user not found")
	// ErrDuplicateEmail indicates the email already holds an account.
	ErrDuplicateEmail = errors.New("store: duplicate email")
)

// CredentialStore owns the users table. Every mutation is a single atomic
// statement scoped to one user; no other component writes user rows.
type CredentialStore struct {
	db            *gorm.DB
	encryptionKey []byte
}

// NewCredentialStore constructs the store. The encryption key protects TOTP
// secrets at rest and must be 32 bytes (AES-256-GCM).
func NewCredentialStore(db *gorm.DB, encryptionKey []byte) (*CredentialStore, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	if len(encryptionKey) != 32 {
		return nil, errors.New("store: encryption key must be 32 bytes")
	}
	return &CredentialStore{db: db, encryptionKey: encryptionKey}, nil
}

// CreateUserInput captures the fields required to create an account.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
	Role         string
}

// CreateUser inserts a new account. A deactivated account keeps its claim on
// the email address, so any existing row yields ErrDuplicateEmail.
func (s *CredentialStore) CreateUser(input CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.PasswordHash == "" {
		return nil, errors.New("store: email and password hash are required")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("store: check duplicate email: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateEmail
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RoleUser
	}

	user := &models.User{
		Email:       email,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Password:    input.PasswordHash,
		Role:        role,
		IsActive:    true,
	}

	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	return user, nil
}

// FindByEmail returns the user owning the email, or ErrUserNotFound.
func (s *CredentialStore) FindByEmail(email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by email: %w", err)
	}
	return &user, nil
}

// FindByID returns the user with the given id, or ErrUserNotFound.
func (s *CredentialStore) FindByID(id string) (*models.User, error) {
	var user models.User
	err := s.db.Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by id: %w", err)
	}
	return &user, nil
}

// MarkEmailVerified flags the account as email-verified. Idempotent.
func (s *CredentialStore) MarkEmailVerified(userID string) error {
	result := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("email_verified", true)
	if result.Error != nil {
		return fmt.Errorf("store: mark email verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTOTPSecret stores a freshly provisioned secret, encrypted at rest, and
// forces enrollment back to disabled in the same statement so a half-finished
// setup can never satisfy the second factor.
func (s *CredentialStore) SetTOTPSecret(userID, secret string) error {
	encrypted, err := crypto.Encrypt([]byte(secret), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("store: encrypt totp secret: %w", err)
	}

	result := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"totp_secret":  encrypted,
			"totp_enabled": false,
		})
	if result.Error != nil {
		return fmt.Errorf("store: set totp secret: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TOTPSecret decrypts and returns the stored secret.
func (s *CredentialStore) TOTPSecret(user *models.User) (string, error) {
	if user == nil || user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return "", errors.New("store: no totp secret provisioned")
	}

	raw, err := crypto.Decrypt(*user.TOTPSecret, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("store: decrypt totp secret: %w", err)
	}
	return string(raw), nil
}

// EnableTOTP marks enrollment complete for an account that has a secret.
func (s *CredentialStore) EnableTOTP(userID string) error {
	result := s.db.Model(&models.User{}).
		Where("id = ? AND totp_secret IS NOT NULL", userID).
		Update("totp_enabled", true)
	if result.Error != nil {
		return fmt.Errorf("store: enable totp: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps the last successful login.
func (s *CredentialStore) RecordLogin(userID, ip string, at time.Time) error {
	err := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at": at,
			"last_login_ip": strings.TrimSpace(ip),
		}).Error
	if err != nil {
		return fmt.Errorf("store: record login: %w", err)
	}
	return nil
}

// Deactivate soft-disables the account and cascades: active sessions are
// revoked, in-flight verifications and backup codes removed. The user row
// itself is never deleted.
func (s *CredentialStore) Deactivate(userID string, at time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? AND is_active = ?", userID, true).
			Update("is_active", false)
		if result.Error != nil {
			return fmt.Errorf("store: deactivate user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}

		if err := tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Update("revoked_at", at).Error; err != nil {
			return fmt.Errorf("store: revoke sessions: %w", err)
		}

		if err := tx.Where("user_id = ?", userID).
			Delete(&models.PendingVerification{}).Error; err != nil {
			return fmt.Errorf("store: clear pending verifications: %w", err)
		}

		if err := tx.Where("user_id = ?", userID).
			Delete(&models.BackupCode{}).Error; err != nil {
			return fmt.Errorf("store: clear backup codes: %w", err)
		}

		return nil
	})
}
