package auth

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/database/testutil"
	"github.com/atriumhq/atrium/internal/models"
)

func setupBackupCodes(t *testing.T) (*gorm.DB, *BackupCodeService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	svc, err := NewBackupCodeService(db)
	require.NoError(t, err)
	return db, svc
}

func TestGenerateBatchMintsEightCodes(t *testing.T) {
	db, svc := setupBackupCodes(t)
	user := createTestUser(t, db, "batch@example.com")

	codes, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)
	require.Len(t, codes, defaultBackupCodeCount)

	for _, code := range codes {
		require.Len(t, code, backupCodeLength)
		for _, r := range code {
			require.Contains(t, backupCodeAlphabet, string(r))
		}
	}

	// Plaintext is never persisted.
	var stored []models.BackupCode
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&stored).Error)
	require.Len(t, stored, defaultBackupCodeCount)
	for _, record := range stored {
		require.True(t, strings.HasPrefix(record.CodeHash, "$2"))
		require.Nil(t, record.UsedAt)
	}
}

func TestConsumeSpendsCodeExactlyOnce(t *testing.T) {
	db, svc := setupBackupCodes(t)
	user := createTestUser(t, db, "consume@example.com")

	codes, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)

	ok, err := svc.Consume(user.ID, codes[0])
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Consume(user.ID, codes[0])
	require.NoError(t, err)
	require.False(t, ok)

	remaining, err := svc.Remaining(user.ID)
	require.NoError(t, err)
	require.Equal(t, defaultBackupCodeCount-1, remaining)
}

func TestConsumeNormalisesInput(t *testing.T) {
	db, svc := setupBackupCodes(t)
	user := createTestUser(t, db, "normalise@example.com")

	codes, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)

	code := codes[0]
	messy := strings.ToLower(code[:4] + "-" + code[4:] + " ")
	ok, err := svc.Consume(user.ID, messy)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConsumeRejectsUnknownInputsUniformly(t *testing.T) {
	db, svc := setupBackupCodes(t)
	user := createTestUser(t, db, "reject@example.com")

	_, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)

	ok, err := svc.Consume(user.ID, "WRONGCOD")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Consume("no-such-user", "WRONGCOD")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Consume(user.ID, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerateBatchInvalidatesPriorBatch(t *testing.T) {
	db, svc := setupBackupCodes(t)
	user := createTestUser(t, db, "rotate@example.com")

	oldCodes, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)

	newCodes, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)

	ok, err := svc.Consume(user.ID, oldCodes[0])
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Consume(user.ID, newCodes[0])
	require.NoError(t, err)
	require.True(t, ok)

	remaining, err := svc.Remaining(user.ID)
	require.NoError(t, err)
	require.Equal(t, defaultBackupCodeCount-1, remaining)
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	db, svc := setupBackupCodes(t)
	user := createTestUser(t, db, "race@example.com")

	codes, err := svc.GenerateBatch(user.ID)
	require.NoError(t, err)

	const attempts = 8
	results := make([]bool, attempts)

	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			ok, err := svc.Consume(user.ID, codes[0])
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}
