package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.PendingVerification{},
		&models.BackupCode{},
		&models.Invitation{},
		&models.AuditLog{},
	)
}

// SeedInvitations replaces the invitation allow-list with the supplied
// entries. Emails are lowercased so the gate can compare case-insensitively.
func SeedInvitations(db *gorm.DB, entries []models.Invitation) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Invitation{}).Error; err != nil {
			return fmt.Errorf("clear invitations: %w", err)
		}

		for _, entry := range entries {
			email := strings.ToLower(strings.TrimSpace(entry.Email))
			if email == "" {
				continue
			}
			role := strings.TrimSpace(entry.Role)
			if role == "" {
				role = models.RoleUser
			}
			if err := tx.Create(&models.Invitation{Email: email, Role: role}).Error; err != nil {
				return fmt.Errorf("seed invitation %s: %w", email, err)
			}
		}
		return nil
	})
}

// MigrateAndSeed is the convenience helper used during application start-up.
func MigrateAndSeed(db *gorm.DB, invitations []models.Invitation) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := SeedInvitations(db, invitations); err != nil {
		return fmt.Errorf("seed invitations: %w", err)
	}

	return nil
}
