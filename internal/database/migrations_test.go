package database

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
)

func openMigrated(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func TestAutoMigrateCreatesSchema(t *testing.T) {
	db := openMigrated(t)

	for _, table := range []string{
		"users", "sessions", "pending_verifications",
		"backup_codes", "invitations", "audit_logs",
	} {
		require.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestSeedInvitationsReplacesAllowList(t *testing.T) {
	db := openMigrated(t)

	require.NoError(t, SeedInvitations(db, []models.Invitation{
		{Email: "Old@Example.com", Role: "admin"},
	}))

	require.NoError(t, SeedInvitations(db, []models.Invitation{
		{Email: "NEW@Example.com"},
		{Email: "  "},
	}))

	var entries []models.Invitation
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, "new@example.com", entries[0].Email)
	require.Equal(t, models.RoleUser, entries[0].Role)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}
