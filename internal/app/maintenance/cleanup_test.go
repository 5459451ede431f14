package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/database/testutil"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/security"
)

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Email:    email,
		Password: "hash",
		Role:     models.RoleUser,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestRunOncePurgesDeadState(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	user := seedUser(t, db, "cleanup@example.com")

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{Clock: clock})
	require.NoError(t, err)

	liveToken, _, err := sessions.Issue(user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)

	_, expired, err := sessions.Issue(user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", now.Add(-time.Hour)).Error)

	require.NoError(t, db.Create(&models.PendingVerification{
		UserID:    user.ID,
		Kind:      models.VerificationEmail,
		TokenHash: "lapsed",
		ExpiresAt: now.Add(-time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.PendingVerification{
		UserID:    user.ID,
		Kind:      models.VerificationTOTPVerify,
		TokenHash: "fresh",
		ExpiresAt: now.Add(time.Hour),
	}).Error)

	audit, err := security.NewRecorder(db)
	require.NoError(t, err)
	audit.WithClock(func() time.Time { return now.AddDate(0, 0, -120) })
	audit.Record(context.Background(), security.Event{Action: security.ActionLogin, Result: security.ResultSuccess})
	audit.WithClock(clock)
	audit.Record(context.Background(), security.Event{Action: security.ActionLogout, Result: security.ResultSuccess})

	cleaner := NewCleaner(db, sessions, audit, WithNow(clock))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	_, err = sessions.Validate(liveToken)
	require.NoError(t, err)

	var sessionCount int64
	require.NoError(t, db.Model(&models.Session{}).Count(&sessionCount).Error)
	require.EqualValues(t, 1, sessionCount)

	var pendings []models.PendingVerification
	require.NoError(t, db.Find(&pendings).Error)
	require.Len(t, pendings, 1)
	require.Equal(t, "fresh", pendings[0].TokenHash)

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.EqualValues(t, 1, auditCount)
}

func TestCleanupPendingVerificationsRequiresDB(t *testing.T) {
	_, err := CleanupPendingVerifications(context.Background(), nil, time.Now())
	require.Error(t, err)
}

func TestRunOnceWithNoDependenciesIsNoOp(t *testing.T) {
	cleaner := NewCleaner(nil, nil, nil)
	require.NoError(t, cleaner.RunOnce(context.Background()))
}
