package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/database/testutil"
	"github.com/atriumhq/atrium/internal/models"
)

var testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")

func setupStore(t *testing.T) (*gorm.DB, *CredentialStore) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	store, err := NewCredentialStore(db, testEncryptionKey)
	require.NoError(t, err)
	return db, store
}

func TestNewCredentialStoreValidatesKey(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	_, err := NewCredentialStore(db, []byte("short"))
	require.Error(t, err)

	_, err = NewCredentialStore(nil, testEncryptionKey)
	require.Error(t, err)
}

func TestCreateUserNormalisesEmail(t *testing.T) {
	_, store := setupStore(t)

	user, err := store.CreateUser(CreateUserInput{
		Email:        "  Person@Example.COM ",
		PasswordHash: "hash",
		DisplayName:  " Person ",
	})
	require.NoError(t, err)
	require.Equal(t, "person@example.com", user.Email)
	require.Equal(t, "Person", user.DisplayName)
	require.Equal(t, models.RoleUser, user.Role)
	require.True(t, user.IsActive)
	require.False(t, user.EmailVerified)
	require.False(t, user.TOTPEnabled)
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	_, store := setupStore(t)

	_, err := store.CreateUser(CreateUserInput{Email: "dupe@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	_, err = store.CreateUser(CreateUserInput{Email: "DUPE@example.com", PasswordHash: "hash"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestDeactivatedAccountKeepsEmailClaim(t *testing.T) {
	_, store := setupStore(t)

	user, err := store.CreateUser(CreateUserInput{Email: "held@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	require.NoError(t, store.Deactivate(user.ID, time.Now()))

	_, err = store.CreateUser(CreateUserInput{Email: "held@example.com", PasswordHash: "hash"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestFindByEmailAndID(t *testing.T) {
	_, store := setupStore(t)

	created, err := store.CreateUser(CreateUserInput{Email: "find@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	byEmail, err := store.FindByEmail("FIND@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)

	byID, err := store.FindByID(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Email, byID.Email)

	_, err = store.FindByEmail("missing@example.com")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.FindByID("missing-id")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSetTOTPSecretEncryptsAtRest(t *testing.T) {
	_, store := setupStore(t)

	user, err := store.CreateUser(CreateUserInput{Email: "totp@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	const secret = "JBSWY3DPEHPK3PXP"
	require.NoError(t, store.SetTOTPSecret(user.ID, secret))

	reloaded, err := store.FindByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.TOTPSecret)
	require.NotEqual(t, secret, *reloaded.TOTPSecret)
	require.NotContains(t, *reloaded.TOTPSecret, secret)

	decrypted, err := store.TOTPSecret(reloaded)
	require.NoError(t, err)
	require.Equal(t, secret, decrypted)
}

func TestSetTOTPSecretResetsEnrollment(t *testing.T) {
	_, store := setupStore(t)

	user, err := store.CreateUser(CreateUserInput{Email: "reset@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	require.NoError(t, store.SetTOTPSecret(user.ID, "FIRSTSECRET234567"))
	require.NoError(t, store.EnableTOTP(user.ID))

	// Provisioning a replacement secret drops the enabled flag until the new
	// secret is confirmed.
	require.NoError(t, store.SetTOTPSecret(user.ID, "SECONDSECRET23456"))

	reloaded, err := store.FindByID(user.ID)
	require.NoError(t, err)
	require.False(t, reloaded.TOTPEnabled)
}

func TestEnableTOTPRequiresSecret(t *testing.T) {
	_, store := setupStore(t)

	user, err := store.CreateUser(CreateUserInput{Email: "nosecret@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	require.ErrorIs(t, store.EnableTOTP(user.ID), ErrUserNotFound)

	require.NoError(t, store.SetTOTPSecret(user.ID, "JBSWY3DPEHPK3PXP"))
	require.NoError(t, store.EnableTOTP(user.ID))

	reloaded, err := store.FindByID(user.ID)
	require.NoError(t, err)
	require.True(t, reloaded.TOTPEnabled)
}

func TestDeactivateCascades(t *testing.T) {
	db, store := setupStore(t)

	user, err := store.CreateUser(CreateUserInput{Email: "cascade@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	sessions, err := NewSessionService(db, SessionConfig{})
	require.NoError(t, err)
	token, _, err := sessions.Issue(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.PendingVerification{
		UserID:    user.ID,
		Kind:      models.VerificationEmail,
		TokenHash: "deadbeef",
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error)

	backup, err := NewBackupCodeService(db)
	require.NoError(t, err)
	_, err = backup.GenerateBatch(user.ID)
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(user.ID, time.Now()))

	reloaded, err := store.FindByID(user.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsActive)

	_, err = sessions.Validate(token)
	require.ErrorIs(t, err, ErrSessionInvalid)

	var pendings int64
	require.NoError(t, db.Model(&models.PendingVerification{}).
		Where("user_id = ?", user.ID).Count(&pendings).Error)
	require.Zero(t, pendings)

	remaining, err := backup.Remaining(user.ID)
	require.NoError(t, err)
	require.Zero(t, remaining)

	// Deactivating an already-deactivated account reports not found.
	require.ErrorIs(t, store.Deactivate(user.ID, time.Now()), ErrUserNotFound)
}
