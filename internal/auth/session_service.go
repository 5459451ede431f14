package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/crypto"
	"github.com/atriumhq/atrium/pkg/metrics"
)

// DefaultSessionTTL is the fallback session lifetime, fixed at issuance.
const DefaultSessionTTL = 30 * 24 * time.Hour

// defaultTokenLength is the session token entropy in bytes (256 bits).
const defaultTokenLength = 32

// ErrSessionInvalid uniformly covers unknown, revoked, and expired tokens so
// callers cannot distinguish why a credential was rejected.
var ErrSessionInvalid = errors.New("session: invalid")

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	TTL         time.Duration
	TokenLength int
	Clock       func() time.Time
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionService issues, validates, and revokes the opaque bearer credential
// that represents a completed authentication. Expiry is fixed at issuance:
// activity never slides it, and a fresh session requires a new full flow.
// Only the SHA-256 digest of a token is persisted; the raw credential exists
// nowhere but in the client's hands.
type SessionService struct {
	db       *gorm.DB
	ttl      time.Duration
	tokenLen int
	now      func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	length := cfg.TokenLength
	if length <= 0 {
		length = defaultTokenLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:       db,
		ttl:      ttl,
		tokenLen: length,
		now:      clock,
	}, nil
}

// Issue mints a new session for the user and returns the opaque token.
func (s *SessionService) Issue(userID string, meta SessionMetadata) (string, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, errors.New("session service: user id is required")
	}

	token, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return "", nil, fmt.Errorf("session service: generate token: %w", err)
	}

	now := s.now()

	session := &models.Session{
		UserID:    userID,
		Token:     crypto.HashToken(token),
		IPAddress: strings.TrimSpace(meta.IPAddress),
		UserAgent: strings.TrimSpace(meta.UserAgent),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.db.Create(session).Error; err != nil {
		return "", nil, fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()

	return token, session, nil
}

// Validate answers "is this request authenticated". It returns the owning
// user id, or ErrSessionInvalid for unknown, revoked, and expired tokens
// alike. Storage failures surface as distinct errors so infrastructure
// trouble is never mistaken for a rejected credential.
func (s *SessionService) Validate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrSessionInvalid
	}

	var session models.Session
	err := s.db.Take(&session, "token = ?", crypto.HashToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", fmt.Errorf("session service: find session: %w", err)
	}

	if !session.Valid(s.now()) {
		return "", ErrSessionInvalid
	}

	return session.UserID, nil
}

// Revoke marks the session revoked. Idempotent: revoking an unknown or
// already-revoked token is a no-op success.
func (s *SessionService) Revoke(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	result := s.db.Model(&models.Session{}).
		Where("token = ? AND revoked_at IS NULL", crypto.HashToken(token)).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return nil
}

// RevokeByID revokes one of the user's own sessions. Scoped to the owner so a
// session id leaked across users is useless.
func (s *SessionService) RevokeByID(userID, sessionID string) error {
	result := s.db.Model(&models.Session{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke by id: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *SessionService) RevokeUserSessions(userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("session service: user id is required")
	}

	result := s.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return result.RowsAffected, nil
}

// ListActive returns the user's sessions that are still valid right now.
func (s *SessionService) ListActive(userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now()).
		Order("issued_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session service: list active: %w", err)
	}
	return sessions, nil
}

// CleanupExpired removes sessions that have expired or been revoked, keeping
// the table and the active-session gauge honest.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL").
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}

	return result.RowsAffected, nil
}
