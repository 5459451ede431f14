package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Auth event actions recorded in the audit trail.
const (
	ActionRegister         = "auth.register"
	ActionVerifyEmail      = "auth.verify_email"
	ActionResendEmail      = "auth.resend_verification"
	ActionLogin            = "auth.login"
	ActionTOTPSetup        = "auth.totp_setup"
	ActionTOTPVerify       = "auth.totp_verify"
	ActionBackupConsume    = "auth.backup_code"
	ActionBackupRegenerate = "auth.backup_regenerate"
	ActionLogout           = "auth.logout"
	ActionSessionRevoke    = "auth.session_revoke"
	ActionDeactivate       = "auth.deactivate"
)

// Event outcomes. Results carry the internal distinction that client-facing
// responses deliberately hide.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Event describes one auth-relevant occurrence.
type Event struct {
	UserID    string
	Email     string
	Action    string
	Result    string
	IPAddress string
	UserAgent string
	Reason    string
	Metadata  map[string]any
}

// Recorder persists audit events. Recording is best effort: a failed insert
// is logged and never propagated, so diagnostics cannot break the auth flow.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// NewRecorder constructs an audit recorder.
func NewRecorder(db *gorm.DB) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("audit: db is required")
	}
	return &Recorder{
		db:  db,
		log: logger.WithComponent("audit"),
		now: time.Now,
	}, nil
}

// WithClock overrides the timestamp source, primarily for testing.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Record writes the event to the audit trail.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if ctx == nil {
		ctx = context.Background()
	}

	meta := event.Metadata
	if event.Reason != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["reason"] = event.Reason
	}

	var payload datatypes.JSON
	if len(meta) > 0 {
		encoded, err := json.Marshal(meta)
		if err != nil {
			r.log.Warn("drop unencodable audit metadata",
				zap.String("action", event.Action), zap.Error(err))
		} else {
			payload = datatypes.JSON(encoded)
		}
	}

	entry := &models.AuditLog{
		Email:     event.Email,
		Action:    event.Action,
		Result:    event.Result,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Metadata:  payload,
		CreatedAt: r.now(),
	}
	if event.UserID != "" {
		userID := event.UserID
		entry.UserID = &userID
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.log.Error("write audit entry",
			zap.String("action", event.Action),
			zap.String("result", event.Result),
			zap.Error(err))
	}
}

// CleanupOlderThan deletes audit entries created before the cutoff.
func (r *Recorder) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
