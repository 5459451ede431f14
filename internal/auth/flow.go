package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/invite"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/internal/security"
	"github.com/atriumhq/atrium/pkg/crypto"
	"github.com/atriumhq/atrium/pkg/logger"
	"github.com/atriumhq/atrium/pkg/mail"
	"github.com/atriumhq/atrium/pkg/metrics"
)

const (
	// DefaultEmailVerificationTTL bounds how long an emailed link stays valid.
	DefaultEmailVerificationTTL = 24 * time.Hour
	// DefaultTwoFactorTTL bounds the window between password acceptance and
	// second-factor completion.
	DefaultTwoFactorTTL = 10 * time.Minute

	minPasswordLength = 8
	pendingTokenBytes = 32
)

// Flow failure sentinels. Handlers normalise these to uniform client-facing
// messages; the audit trail keeps the real reason.
var (
	// ErrNotInvited rejects an email absent from the invitation allow-list.
	ErrNotInvited = errors.New("flow: not invited")
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// deactivated accounts uniformly.
	ErrInvalidCredentials = errors.New("flow: invalid credentials")
	// ErrInvalidCode covers wrong TOTP codes and unusable backup codes.
	ErrInvalidCode = errors.New("flow: invalid code")
	// ErrVerificationExpired means the acted-on pending verification is gone
	// or lapsed; the attempt reverts to anonymous.
	ErrVerificationExpired = errors.New("flow: verification expired")
	// ErrWeakPassword rejects passwords below the minimum policy.
	ErrWeakPassword = errors.New("flow: weak password")
)

// Step identifies the observable state of an authentication attempt.
type Step string

const (
	StepEmailPending  Step = "email_pending"
	StepTOTPSetup     Step = "totp_setup"
	StepTOTPVerify    Step = "totp_verify"
	StepAuthenticated Step = "authenticated"
)

// RequestMeta carries client context for auditing and session records.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Enrollment holds the provisioning material handed to the client when TOTP
// setup begins. The secret is never retrievable again.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
	QRCode []byte `json:"qr_code"`
}

// FlowState is the outcome of a flow operation: which step the attempt is in
// and whatever material that step needs.
type FlowState struct {
	Step         Step
	User         *models.User
	PendingToken string
	Enrollment   *Enrollment
	SessionToken string
	Session      *models.Session
	BackupCodes  []string
}

// FlowConfig describes tunable behaviour for the FlowService.
type FlowConfig struct {
	EmailVerificationTTL time.Duration
	TwoFactorTTL         time.Duration
	// VerificationBaseURL prefixes emailed confirmation links.
	VerificationBaseURL string
	Clock               func() time.Time
}

// FlowService drives the login/register/verify/setup state machine:
//
//	Anonymous -> CredentialsSubmitted -> {EmailPending | TOTPSetup | TOTPVerify} -> Authenticated
//
// Transient states are persisted PendingVerification rows with their own
// expiry. Second-factor enrollment is mandatory: there is no path to a
// session that skips completing setup or verifying an existing enrollment.
type FlowService struct {
	db       *gorm.DB
	store    *CredentialStore
	gate     invite.Gate
	totp     *TOTPEngine
	backup   *BackupCodeService
	sessions *SessionService
	mailer   mail.Mailer
	audit    *security.Recorder

	emailTTL     time.Duration
	twoFactorTTL time.Duration
	baseURL      string
	now          func() time.Time
	log          *zap.Logger
}

// NewFlowService wires the state machine over its collaborating components.
func NewFlowService(
	db *gorm.DB,
	store *CredentialStore,
	gate invite.Gate,
	totp *TOTPEngine,
	backup *BackupCodeService,
	sessions *SessionService,
	mailer mail.Mailer,
	audit *security.Recorder,
	cfg FlowConfig,
) (*FlowService, error) {
	if db == nil {
		return nil, errors.New("flow: db is required")
	}
	if store == nil || gate == nil || totp == nil || backup == nil || sessions == nil {
		return nil, errors.New("flow: all auth components are required")
	}
	if audit == nil {
		return nil, errors.New("flow: audit recorder is required")
	}

	emailTTL := cfg.EmailVerificationTTL
	if emailTTL <= 0 {
		emailTTL = DefaultEmailVerificationTTL
	}
	twoFactorTTL := cfg.TwoFactorTTL
	if twoFactorTTL <= 0 {
		twoFactorTTL = DefaultTwoFactorTTL
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &FlowService{
		db:           db,
		store:        store,
		gate:         gate,
		totp:         totp,
		backup:       backup,
		sessions:     sessions,
		mailer:       mailer,
		audit:        audit,
		emailTTL:     emailTTL,
		twoFactorTTL: twoFactorTTL,
		baseURL:      strings.TrimRight(cfg.VerificationBaseURL, "/"),
		now:          clock,
		log:          logger.WithComponent("authflow"),
	}, nil
}

// RegisterInput captures a registration request.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Register creates the account for an invited email and parks the attempt in
// EmailPending until the emailed link is confirmed.
func (s *FlowService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*FlowState, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	invited, err := s.gate.IsInvited(email)
	if err != nil {
		return nil, fmt.Errorf("flow: invitation lookup: %w", err)
	}
	if !invited {
		s.recordEvent(ctx, "", email, security.ActionRegister, security.ResultFailure, "not_invited", meta)
		metrics.Registrations.WithLabelValues("rejected").Inc()
		return nil, ErrNotInvited
	}

	if len(input.Password) < minPasswordLength {
		s.recordEvent(ctx, "", email, security.ActionRegister, security.ResultFailure, "weak_password", meta)
		metrics.Registrations.WithLabelValues("rejected").Inc()
		return nil, ErrWeakPassword
	}

	role, err := s.gate.RoleFor(email)
	if err != nil {
		if errors.Is(err, invite.ErrNoRole) {
			s.recordEvent(ctx, "", email, security.ActionRegister, security.ResultFailure, "not_invited", meta)
			return nil, ErrNotInvited
		}
		return nil, fmt.Errorf("flow: role lookup: %w", err)
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("flow: hash password: %w", err)
	}

	user, err := s.store.CreateUser(CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  input.DisplayName,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.recordEvent(ctx, "", email, security.ActionRegister, security.ResultFailure, "duplicate_email", meta)
			metrics.Registrations.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	token, err := s.replacePending(user.ID, models.VerificationEmail, s.emailTTL)
	if err != nil {
		return nil, err
	}
	s.sendVerificationEmail(ctx, user.Email, token)

	s.recordEvent(ctx, user.ID, email, security.ActionRegister, security.ResultSuccess, "", meta)
	metrics.Registrations.WithLabelValues("created").Inc()

	return &FlowState{Step: StepEmailPending, User: user}, nil
}

// VerifyEmail consumes the emailed token, marks the address verified, and
// advances the attempt straight into mandatory TOTP enrollment.
func (s *FlowService) VerifyEmail(ctx context.Context, token string, meta RequestMeta) (*FlowState, error) {
	pending, err := s.findPending(token, models.VerificationEmail)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(pending.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrVerificationExpired
		}
		return nil, err
	}
	if !user.IsActive {
		s.recordEvent(ctx, user.ID, user.Email, security.ActionVerifyEmail, security.ResultFailure, "deactivated", meta)
		return nil, ErrVerificationExpired
	}

	consumed, err := s.consumePending(s.db, pending)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrVerificationExpired
	}

	if err := s.store.MarkEmailVerified(user.ID); err != nil {
		return nil, err
	}
	user.EmailVerified = true

	state, err := s.beginEnrollment(user)
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, user.ID, user.Email, security.ActionVerifyEmail, security.ResultSuccess, "", meta)
	return state, nil
}

// Login checks the password factor. On success the attempt moves to the
// second factor: verification when enrolled, otherwise fresh enrollment. An
// unverified email re-parks the attempt in EmailPending with a new link.
// Unknown emails, uninvited emails, wrong passwords, and deactivated accounts
// all fail with the same ErrInvalidCredentials.
func (s *FlowService) Login(ctx context.Context, email, password string, meta RequestMeta) (*FlowState, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	invited, err := s.gate.IsInvited(email)
	if err != nil {
		return nil, fmt.Errorf("flow: invitation lookup: %w", err)
	}
	if !invited {
		s.recordEvent(ctx, "", email, security.ActionLogin, security.ResultFailure, "not_invited", meta)
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordEvent(ctx, "", email, security.ActionLogin, security.ResultFailure, "unknown_email", meta)
			metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		s.recordEvent(ctx, user.ID, email, security.ActionLogin, security.ResultFailure, "deactivated", meta)
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(user.Password, password) {
		s.recordEvent(ctx, user.ID, email, security.ActionLogin, security.ResultFailure, "wrong_password", meta)
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, ErrInvalidCredentials
	}

	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()

	if !user.EmailVerified {
		token, err := s.replacePending(user.ID, models.VerificationEmail, s.emailTTL)
		if err != nil {
			return nil, err
		}
		s.sendVerificationEmail(ctx, user.Email, token)
		s.recordEvent(ctx, user.ID, email, security.ActionLogin, security.ResultFailure, "email_unverified", meta)
		return &FlowState{Step: StepEmailPending, User: user}, nil
	}

	if err := s.store.RecordLogin(user.ID, meta.IPAddress, s.now()); err != nil {
		s.log.Warn("record last login", zap.Error(err))
	}

	if !user.TOTPEnabled {
		state, err := s.beginEnrollment(user)
		if err != nil {
			return nil, err
		}
		s.recordEvent(ctx, user.ID, email, security.ActionLogin, security.ResultSuccess, "enrollment_required", meta)
		return state, nil
	}

	token, err := s.replacePending(user.ID, models.VerificationTOTPVerify, s.twoFactorTTL)
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, user.ID, email, security.ActionLogin, security.ResultSuccess, "", meta)
	return &FlowState{Step: StepTOTPVerify, User: user, PendingToken: token}, nil
}

// CompleteSetup finishes TOTP enrollment: the submitted code must match the
// just-issued secret. On success the enrollment is enabled, a fresh batch of
// backup codes is minted (returned exactly once), and a session is issued.
// A wrong code leaves the pending step in place for another try.
func (s *FlowService) CompleteSetup(ctx context.Context, pendingToken, code string, meta RequestMeta) (*FlowState, error) {
	pending, err := s.findPending(pendingToken, models.VerificationTOTPSetup)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(pending.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrVerificationExpired
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrVerificationExpired
	}

	secret, err := s.store.TOTPSecret(user)
	if err != nil {
		return nil, err
	}

	if !s.totp.VerifyCode(secret, code, s.now()) {
		s.recordEvent(ctx, user.ID, user.Email, security.ActionTOTPSetup, security.ResultFailure, "invalid_code", meta)
		metrics.AuthAttempts.WithLabelValues("totp", "failure").Inc()
		return nil, ErrInvalidCode
	}

	consumed, err := s.consumePending(s.db, pending)
	if err != nil {
		return nil, err
	}
	if !consumed {
		// A concurrent completion won; exactly one session exists.
		return nil, ErrVerificationExpired
	}

	if err := s.store.EnableTOTP(user.ID); err != nil {
		return nil, err
	}
	user.TOTPEnabled = true

	backupCodes, err := s.backup.GenerateBatch(user.ID)
	if err != nil {
		return nil, err
	}

	state, err := s.issueSession(user, meta)
	if err != nil {
		return nil, err
	}
	state.BackupCodes = backupCodes

	metrics.AuthAttempts.WithLabelValues("totp", "success").Inc()
	s.recordEvent(ctx, user.ID, user.Email, security.ActionTOTPSetup, security.ResultSuccess, "", meta)
	return state, nil
}

// Verify2FA checks the second factor for an enrolled user: a TOTP code first,
// then a backup code. Exactly one of two racing verifications can consume the
// pending step and mint a session.
func (s *FlowService) Verify2FA(ctx context.Context, pendingToken, code string, meta RequestMeta) (*FlowState, error) {
	pending, err := s.findPending(pendingToken, models.VerificationTOTPVerify)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(pending.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrVerificationExpired
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrVerificationExpired
	}

	secret, err := s.store.TOTPSecret(user)
	if err != nil {
		return nil, err
	}

	method := "totp"
	action := security.ActionTOTPVerify
	if s.totp.VerifyCode(secret, code, s.now()) {
		consumed, err := s.consumePending(s.db, pending)
		if err != nil {
			return nil, err
		}
		if !consumed {
			return nil, ErrVerificationExpired
		}
	} else {
		// Spending the code and claiming the pending step share a
		// transaction: losing the claim race rolls the code back unspent.
		err := s.db.Transaction(func(tx *gorm.DB) error {
			spent, err := s.backup.consume(tx, user.ID, code)
			if err != nil {
				return err
			}
			if !spent {
				return ErrInvalidCode
			}
			claimed, err := s.consumePending(tx, pending)
			if err != nil {
				return err
			}
			if !claimed {
				return ErrVerificationExpired
			}
			return nil
		})
		if errors.Is(err, ErrInvalidCode) {
			s.recordEvent(ctx, user.ID, user.Email, security.ActionTOTPVerify, security.ResultFailure, "invalid_code", meta)
			metrics.AuthAttempts.WithLabelValues("totp", "failure").Inc()
			return nil, ErrInvalidCode
		}
		if err != nil {
			return nil, err
		}
		method = "backup_code"
		action = security.ActionBackupConsume
		metrics.BackupCodesConsumed.Inc()
	}

	state, err := s.issueSession(user, meta)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues(method, "success").Inc()
	s.audit.Record(ctx, security.Event{
		UserID:    user.ID,
		Email:     user.Email,
		Action:    action,
		Result:    security.ResultSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"method": method},
	})
	return state, nil
}

// Logout revokes the session. Idempotent: an unknown or already-revoked token
// is a no-op success.
func (s *FlowService) Logout(ctx context.Context, sessionToken string, meta RequestMeta) error {
	if err := s.sessions.Revoke(sessionToken); err != nil {
		return err
	}
	s.recordEvent(ctx, "", "", security.ActionLogout, security.ResultSuccess, "", meta)
	return nil
}

// RevokeSession revokes one of the user's own sessions by id. Idempotent and
// owner-scoped, like the underlying session operation.
func (s *FlowService) RevokeSession(ctx context.Context, userID, sessionID string, meta RequestMeta) error {
	if err := s.sessions.RevokeByID(userID, sessionID); err != nil {
		return err
	}
	s.recordEvent(ctx, userID, "", security.ActionSessionRevoke, security.ResultSuccess, "", meta)
	return nil
}

// RevokeAllSessions revokes every active session the user holds, the current
// one included, and reports how many were cut.
func (s *FlowService) RevokeAllSessions(ctx context.Context, userID string, meta RequestMeta) (int64, error) {
	revoked, err := s.sessions.RevokeUserSessions(userID)
	if err != nil {
		return 0, err
	}
	s.recordEvent(ctx, userID, "", security.ActionSessionRevoke, security.ResultSuccess, "", meta)
	return revoked, nil
}

// ResendVerification re-issues the email confirmation link. It reveals
// nothing: the response is identical whether or not the email has an account
// waiting on verification.
func (s *FlowService) ResendVerification(ctx context.Context, email string, meta RequestMeta) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordEvent(ctx, "", email, security.ActionResendEmail, security.ResultFailure, "unknown_email", meta)
			return nil
		}
		return err
	}
	if !user.IsActive || user.EmailVerified {
		s.recordEvent(ctx, user.ID, email, security.ActionResendEmail, security.ResultFailure, "not_applicable", meta)
		return nil
	}

	token, err := s.replacePending(user.ID, models.VerificationEmail, s.emailTTL)
	if err != nil {
		return err
	}
	s.sendVerificationEmail(ctx, user.Email, token)
	s.recordEvent(ctx, user.ID, email, security.ActionResendEmail, security.ResultSuccess, "", meta)
	return nil
}

// RegenerateBackupCodes replaces the live batch for an enrolled user. A fresh
// TOTP code is required so a hijacked session alone cannot rotate codes.
func (s *FlowService) RegenerateBackupCodes(ctx context.Context, userID, totpCode string, meta RequestMeta) ([]string, error) {
	user, err := s.store.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !user.TOTPEnabled {
		return nil, ErrInvalidCode
	}

	secret, err := s.store.TOTPSecret(user)
	if err != nil {
		return nil, err
	}
	if !s.totp.VerifyCode(secret, totpCode, s.now()) {
		s.recordEvent(ctx, user.ID, user.Email, security.ActionBackupRegenerate, security.ResultFailure, "invalid_code", meta)
		return nil, ErrInvalidCode
	}

	codes, err := s.backup.GenerateBatch(user.ID)
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, user.ID, user.Email, security.ActionBackupRegenerate, security.ResultSuccess, "", meta)
	return codes, nil
}

// Deactivate soft-disables an account and severs everything attached to it.
func (s *FlowService) Deactivate(ctx context.Context, userID string, meta RequestMeta) error {
	if err := s.store.Deactivate(userID, s.now()); err != nil {
		return err
	}
	s.recordEvent(ctx, userID, "", security.ActionDeactivate, security.ResultSuccess, "", meta)
	return nil
}

// beginEnrollment provisions a fresh secret and parks the attempt in the
// setup step. Restarting setup always issues a new secret; the stored secret
// stays unusable until the first valid code enables it.
func (s *FlowService) beginEnrollment(user *models.User) (*FlowState, error) {
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := s.store.SetTOTPSecret(user.ID, secret); err != nil {
		return nil, err
	}

	key, err := s.totp.ProvisioningKey(secret, user.Email)
	if err != nil {
		return nil, err
	}
	qr, err := s.totp.QRCode(key)
	if err != nil {
		return nil, err
	}

	token, err := s.replacePending(user.ID, models.VerificationTOTPSetup, s.twoFactorTTL)
	if err != nil {
		return nil, err
	}

	return &FlowState{
		Step:         StepTOTPSetup,
		User:         user,
		PendingToken: token,
		Enrollment: &Enrollment{
			Secret: secret,
			URL:    key.String(),
			QRCode: qr,
		},
	}, nil
}

func (s *FlowService) issueSession(user *models.User, meta RequestMeta) (*FlowState, error) {
	token, session, err := s.sessions.Issue(user.ID, SessionMetadata{
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	return &FlowState{
		Step:         StepAuthenticated,
		User:         user,
		SessionToken: token,
		Session:      session,
	}, nil
}

// replacePending swaps any in-flight verification for the user with a new
// one, enforcing the at-most-one-pending-per-attempt invariant, and returns
// the raw continuation token. Only the SHA-256 digest is persisted.
func (s *FlowService) replacePending(userID string, kind models.VerificationKind, ttl time.Duration) (string, error) {
	token, err := crypto.GenerateToken(pendingTokenBytes)
	if err != nil {
		return "", fmt.Errorf("flow: generate pending token: %w", err)
	}

	pending := &models.PendingVerification{
		UserID:    userID,
		Kind:      kind,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: s.now().Add(ttl),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).
			Delete(&models.PendingVerification{}).Error; err != nil {
			return fmt.Errorf("flow: clear pending verifications: %w", err)
		}
		if err := tx.Create(pending).Error; err != nil {
			return fmt.Errorf("flow: create pending verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// findPending resolves a continuation token to its pending verification. A
// missing row, a kind mismatch, and a lapsed expiry all read as
// ErrVerificationExpired: the attempt is simply anonymous again.
func (s *FlowService) findPending(token string, kind models.VerificationKind) (*models.PendingVerification, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrVerificationExpired
	}

	var pending models.PendingVerification
	err := s.db.Take(&pending, "token_hash = ?", crypto.HashToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVerificationExpired
	}
	if err != nil {
		return nil, fmt.Errorf("flow: find pending verification: %w", err)
	}

	if pending.Kind != kind {
		return nil, ErrVerificationExpired
	}

	if pending.Expired(s.now()) {
		if err := s.db.Delete(&models.PendingVerification{}, "id = ?", pending.ID).Error; err != nil {
			s.log.Warn("delete expired pending verification", zap.Error(err))
		}
		return nil, ErrVerificationExpired
	}

	return &pending, nil
}

// consumePending deletes the pending row iff it still exists. The conditional
// delete is the linearisation point: of two racing completions, exactly one
// observes RowsAffected == 1 and may mint a session. Callers that spend other
// material alongside the claim pass their transaction handle.
func (s *FlowService) consumePending(db *gorm.DB, pending *models.PendingVerification) (bool, error) {
	result := db.
		Where("id = ? AND token_hash = ?", pending.ID, pending.TokenHash).
		Delete(&models.PendingVerification{})
	if result.Error != nil {
		return false, fmt.Errorf("flow: consume pending verification: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *FlowService) sendVerificationEmail(ctx context.Context, email, token string) {
	if s.mailer == nil {
		return
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
	err := s.mailer.Send(ctx, mail.Message{
		To:      email,
		Subject: "Confirm your Atrium account",
		Body:    "Open the link below to confirm your email address:\r\n\r\n" + link + "\r\n",
	})
	if err != nil && !errors.Is(err, mail.ErrDeliveryDisabled) {
		// Auth state is untouched; the pending verification sits idle until
		// the user requests a resend.
		s.log.Warn("send verification email", zap.Error(err))
	}
}

func (s *FlowService) recordEvent(ctx context.Context, userID, email, action, result, reason string, meta RequestMeta) {
	s.audit.Record(ctx, security.Event{
		UserID:    userID,
		Email:     email,
		Action:    action,
		Result:    result,
		Reason:    reason,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}
