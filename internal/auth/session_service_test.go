package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/database/testutil"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/crypto"
)

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	clock := newTestClock()
	svc, err := NewSessionService(db, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	return db, svc, clock
}

func TestIssueCreatesOpaqueSession(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "issue@example.com")

	token, session, err := svc.Issue(user.ID, SessionMetadata{
		IPAddress: " 10.0.0.1 ",
		UserAgent: "unit-test",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	// 32 random bytes, base64url without padding.
	require.Len(t, token, 43)

	require.Equal(t, user.ID, session.UserID)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.Equal(t, "unit-test", session.UserAgent)
	require.True(t, session.IssuedAt.Equal(clock.Now()))
	require.True(t, session.ExpiresAt.Equal(clock.Now().Add(DefaultSessionTTL)))

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "token = ?", crypto.HashToken(token)).Error)
	require.Equal(t, session.ID, reloaded.ID)
}

func TestIssueStoresTokenDigestOnly(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "digest@example.com")

	token, session, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	// A leaked sessions table must not yield usable bearer credentials.
	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.NotEqual(t, token, reloaded.Token)
	require.Equal(t, crypto.HashToken(token), reloaded.Token)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("token = ?", token).Count(&count).Error)
	require.Zero(t, count)

	// The raw token still validates and revokes.
	userID, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)

	require.NoError(t, svc.Revoke(token))
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrSessionInvalid)
}

func TestValidateReturnsOwner(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "validate@example.com")

	token, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	userID, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	_, svc, _ := setupSessionService(t)

	_, err := svc.Validate("no-such-token")
	require.ErrorIs(t, err, ErrSessionInvalid)

	_, err = svc.Validate("   ")
	require.ErrorIs(t, err, ErrSessionInvalid)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "expired@example.com")

	token, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(DefaultSessionTTL + time.Minute)

	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrSessionInvalid)
}

func TestExpiryIsFixedAtIssuance(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "fixed@example.com")

	token, session, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	// Heavy use must not slide the expiry.
	for i := 0; i < 5; i++ {
		clock.Advance(24 * time.Hour)
		_, err := svc.Validate(token)
		require.NoError(t, err)
	}

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.True(t, reloaded.ExpiresAt.Equal(session.ExpiresAt))
}

func TestRevokeIsIdempotent(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "revoke@example.com")

	token, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(token))
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrSessionInvalid)

	// Revoking again, or revoking garbage, is a no-op success.
	require.NoError(t, svc.Revoke(token))
	require.NoError(t, svc.Revoke("unknown-token"))
}

func TestRevokeByIDScopedToOwner(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")

	token, session, err := svc.Issue(owner.ID, SessionMetadata{})
	require.NoError(t, err)

	// A different user cannot revoke someone else's session by id.
	require.NoError(t, svc.RevokeByID(other.ID, session.ID))
	_, err = svc.Validate(token)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeByID(owner.ID, session.ID))
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrSessionInvalid)
}

func TestRevokeUserSessions(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "revokeall@example.com")

	tokens := make([]string, 3)
	for i := range tokens {
		token, _, err := svc.Issue(user.ID, SessionMetadata{})
		require.NoError(t, err)
		tokens[i] = token
	}

	revoked, err := svc.RevokeUserSessions(user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, revoked)

	for _, token := range tokens {
		_, err := svc.Validate(token)
		require.ErrorIs(t, err, ErrSessionInvalid)
	}
}

func TestListActiveExcludesDeadSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "list@example.com")

	live, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	revoked, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(revoked))

	_, expired, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	sessions, err := svc.ListActive(user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, crypto.HashToken(live), sessions[0].Token)
}

func TestCleanupExpiredRemovesDeadRows(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "cleanup@example.com")

	keep, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	revoked, _, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(revoked))

	_, expired, err := svc.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", clock.Now().Add(-time.Hour)).Error)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err = svc.Validate(keep)
	require.NoError(t, err)
}
