package auth

import (
	cryptoRand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/crypto"
	"github.com/atriumhq/atrium/pkg/metrics"
)

const (
	defaultBackupCodeCount = 8
	backupCodeLength       = 8
	// Excludes 0/O, 1/I/L to keep hand-typed recovery codes unambiguous.
	backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// BackupCodeOption customises the service.
type BackupCodeOption func(*BackupCodeService)

// WithBackupCodeCount overrides the batch size.
func WithBackupCodeCount(count int) BackupCodeOption {
	return func(s *BackupCodeService) {
		if count > 0 {
			s.count = count
		}
	}
}

// WithBackupClock injects a custom clock, primarily for testing.
func WithBackupClock(clock func() time.Time) BackupCodeOption {
	return func(s *BackupCodeService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// BackupCodeService manages single-use recovery codes. Only one batch is ever
// live per user, and each code validates at most once.
type BackupCodeService struct {
	db    *gorm.DB
	count int
	now   func() time.Time
}

// NewBackupCodeService constructs the service.
func NewBackupCodeService(db *gorm.DB, opts ...BackupCodeOption) (*BackupCodeService, error) {
	if db == nil {
		return nil, errors.New("backup codes: db is required")
	}

	service := &BackupCodeService{
		db:    db,
		count: defaultBackupCodeCount,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// GenerateBatch mints a fresh batch, invalidating any prior batch in the same
// transaction. The plaintext codes are returned exactly once; only bcrypt
// hashes are persisted.
func (s *BackupCodeService) GenerateBatch(userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("backup codes: user id is required")
	}

	codes := make([]string, s.count)
	hashes := make([]string, s.count)
	for i := range codes {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("backup codes: generate: %w", err)
		}
		hash, err := crypto.HashPassword(code)
		if err != nil {
			return nil, fmt.Errorf("backup codes: hash: %w", err)
		}
		codes[i] = code
		hashes[i] = hash
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; err != nil {
			return fmt.Errorf("backup codes: invalidate previous batch: %w", err)
		}

		for _, hash := range hashes {
			record := &models.BackupCode{UserID: userID, CodeHash: hash}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("backup codes: persist: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// Consume validates and spends a single code. The check-and-mark is a
// conditional update on used_at, so two concurrent requests presenting the
// same code cannot both succeed. No match, an already-used match, and an
// unknown user are all indistinguishable: false, nil.
func (s *BackupCodeService) Consume(userID, code string) (bool, error) {
	ok, err := s.consume(s.db, userID, code)
	if ok {
		metrics.BackupCodesConsumed.Inc()
	}
	return ok, err
}

// consume runs the check-and-mark against the given handle so the auth flow
// can spend a code inside the same transaction that claims the pending step.
func (s *BackupCodeService) consume(db *gorm.DB, userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = normalizeBackupCode(code)
	if userID == "" || code == "" {
		return false, nil
	}

	var candidates []models.BackupCode
	if err := db.
		Where("user_id = ? AND used_at IS NULL", userID).
		Find(&candidates).Error; err != nil {
		return false, fmt.Errorf("backup codes: load: %w", err)
	}

	for _, candidate := range candidates {
		if !crypto.VerifyPassword(candidate.CodeHash, code) {
			continue
		}

		now := s.now()
		result := db.Model(&models.BackupCode{}).
			Where("id = ? AND used_at IS NULL", candidate.ID).
			Update("used_at", now)
		if result.Error != nil {
			return false, fmt.Errorf("backup codes: mark used: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// A concurrent request spent this code first.
			return false, nil
		}

		return true, nil
	}

	return false, nil
}

// Remaining reports how many codes from the live batch are still unspent.
func (s *BackupCodeService) Remaining(userID string) (int, error) {
	var count int64
	err := s.db.Model(&models.BackupCode{}).
		Where("user_id = ? AND used_at IS NULL", strings.TrimSpace(userID)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("backup codes: count remaining: %w", err)
	}
	return int(count), nil
}

func generateBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(backupCodeLength)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < backupCodeLength; i++ {
		n, err := cryptoRand.Int(cryptoRand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, " ", "")
	return strings.ReplaceAll(code, "-", "")
}
