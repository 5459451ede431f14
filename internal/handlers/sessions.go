package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/crypto"
	appErrors "github.com/atriumhq/atrium/pkg/errors"
	"github.com/atriumhq/atrium/pkg/response"
)

// SessionHandler provides self-service management of a user's own sessions.
// Revocations go through the flow service so they land in the audit trail.
type SessionHandler struct {
	flow     *iauth.FlowService
	sessions *iauth.SessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(flow *iauth.FlowService, sessions *iauth.SessionService) *SessionHandler {
	return &SessionHandler{flow: flow, sessions: sessions}
}

type sessionPayload struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

// GET /api/sessions/me
//
// Session tokens are never echoed back; rows are identified by id only.
func (h *SessionHandler) ListMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	currentToken, _ := middleware.SessionToken(c)

	sessions, err := h.sessions.ListActive(userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	// Rows hold digests, never raw tokens; hash the bearer to match.
	currentDigest := ""
	if currentToken != "" {
		currentDigest = crypto.HashToken(currentToken)
	}

	payload := make([]sessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, newSessionPayload(session, currentDigest))
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": payload})
}

func newSessionPayload(session models.Session, currentDigest string) sessionPayload {
	return sessionPayload{
		ID:        session.ID,
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
		Current:   currentDigest != "" && crypto.ConstantTimeEquals(session.Token, currentDigest),
	}
}

// DELETE /api/sessions/:id
//
// Revocation is scoped to the caller's own sessions and is idempotent.
func (h *SessionHandler) Revoke(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		response.Error(c, appErrors.NewBadRequest("session id is required"))
		return
	}

	if err := h.flow.RevokeSession(c.Request.Context(), userID, sessionID, requestMeta(c)); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/sessions/revoke-all
//
// Revokes every session including the current one; the caller must run the
// full login flow again.
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	revoked, err := h.flow.RevokeAllSessions(c.Request.Context(), userID, requestMeta(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}
