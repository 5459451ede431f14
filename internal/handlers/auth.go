package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/models"
	appErrors "github.com/atriumhq/atrium/pkg/errors"
	"github.com/atriumhq/atrium/pkg/response"
)

// AuthHandler exposes the authentication state machine over HTTP.
type AuthHandler struct {
	flow   *iauth.FlowService
	store  *iauth.CredentialStore
	backup *iauth.BackupCodeService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(flow *iauth.FlowService, store *iauth.CredentialStore, backup *iauth.BackupCodeService) *AuthHandler {
	return &AuthHandler{flow: flow, store: store, backup: backup}
}

type userPayload struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	TOTPEnabled   bool       `json:"totp_enabled"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:            user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		TOTPEnabled:   user.TOTPEnabled,
		LastLoginAt:   user.LastLoginAt,
		CreatedAt:     user.CreatedAt,
	}
}

// statePayload serialises a flow outcome. Only the material relevant to the
// reached step is present.
func statePayload(state *iauth.FlowState) gin.H {
	payload := gin.H{"step": state.Step}
	if state.User != nil {
		payload["user"] = newUserPayload(state.User)
	}
	if state.PendingToken != "" {
		payload["pending_token"] = state.PendingToken
	}
	if state.Enrollment != nil {
		payload["enrollment"] = state.Enrollment
	}
	if state.SessionToken != "" {
		payload["session_token"] = state.SessionToken
	}
	if state.Session != nil {
		payload["expires_at"] = state.Session.ExpiresAt
	}
	if len(state.BackupCodes) > 0 {
		payload["backup_codes"] = state.BackupCodes
	}
	return payload
}

// flowError maps state-machine sentinels onto client-facing errors. Anything
// unmapped renders as an opaque 500.
func flowError(err error) error {
	switch {
	case errors.Is(err, iauth.ErrNotInvited):
		return appErrors.ErrNotInvited
	case errors.Is(err, iauth.ErrWeakPassword):
		return appErrors.ErrWeakPassword
	case errors.Is(err, iauth.ErrDuplicateEmail):
		return appErrors.ErrDuplicateEmail
	case errors.Is(err, iauth.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, iauth.ErrInvalidCode):
		return appErrors.ErrInvalidCode
	case errors.Is(err, iauth.ErrVerificationExpired):
		return appErrors.ErrExpiredVerification
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=128"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	state, err := h.flow.Register(c.Request.Context(), iauth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, requestMeta(c))
	if err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusCreated, statePayload(state))
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	state, err := h.flow.VerifyEmail(c.Request.Context(), req.Token, requestMeta(c))
	if err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusOK, statePayload(state))
}

type resendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/resend-verification
//
// Always answers 202 with the same body so the endpoint cannot be used to
// probe which emails have accounts.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req resendVerificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.flow.ResendVerification(c.Request.Context(), req.Email, requestMeta(c)); err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"sent": true})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	state, err := h.flow.Login(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusOK, statePayload(state))
}

type secondFactorRequest struct {
	PendingToken string `json:"pending_token" validate:"required"`
	Code         string `json:"code" validate:"required,min=6,max=16"`
}

// POST /api/auth/2fa/setup/complete
func (h *AuthHandler) CompleteSetup(c *gin.Context) {
	var req secondFactorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	state, err := h.flow.CompleteSetup(c.Request.Context(), req.PendingToken, req.Code, requestMeta(c))
	if err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusOK, statePayload(state))
}

// POST /api/auth/2fa/verify
func (h *AuthHandler) Verify2FA(c *gin.Context) {
	var req secondFactorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	state, err := h.flow.Verify2FA(c.Request.Context(), req.PendingToken, req.Code, requestMeta(c))
	if err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusOK, statePayload(state))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := sessionTokenOrFail(c)
	if !ok {
		return
	}

	if err := h.flow.Logout(c.Request.Context(), token, requestMeta(c)); err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.store.FindByID(userID)
	if err != nil {
		if errors.Is(err, iauth.ErrUserNotFound) {
			response.Error(c, appErrors.ErrUnauthenticated)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, newUserPayload(user))
}

// GET /api/auth/backup-codes/remaining
func (h *AuthHandler) RemainingBackupCodes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	remaining, err := h.backup.Remaining(userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"remaining": remaining})
}

type regenerateBackupCodesRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

// POST /api/auth/backup-codes/regenerate
//
// Requires a fresh TOTP code: possession of a session alone is not enough to
// rotate recovery material.
func (h *AuthHandler) RegenerateBackupCodes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req regenerateBackupCodesRequest
	if !bindAndValidate(c, &req) {
		return
	}

	codes, err := h.flow.RegenerateBackupCodes(c.Request.Context(), userID, req.Code, requestMeta(c))
	if err != nil {
		response.Error(c, flowError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"backup_codes": codes})
}
