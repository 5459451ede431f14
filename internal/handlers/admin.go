package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/models"
	appErrors "github.com/atriumhq/atrium/pkg/errors"
	"github.com/atriumhq/atrium/pkg/response"
)

// AdminHandler exposes operator-only account management.
type AdminHandler struct {
	flow  *iauth.FlowService
	store *iauth.CredentialStore
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(flow *iauth.FlowService, store *iauth.CredentialStore) *AdminHandler {
	return &AdminHandler{flow: flow, store: store}
}

// requireAdmin loads the caller and checks the admin role.
func (h *AdminHandler) requireAdmin(c *gin.Context) bool {
	userID, ok := currentUserID(c)
	if !ok {
		return false
	}

	user, err := h.store.FindByID(userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return false
	}
	if user.Role != models.RoleAdmin {
		response.Error(c, appErrors.ErrNotInvited)
		return false
	}
	return true
}

// POST /api/admin/users/:id/deactivate
//
// Deactivation cascades: every session is revoked, pending verifications are
// dropped, and backup codes are deleted in one transaction.
func (h *AdminHandler) DeactivateUser(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	targetID := strings.TrimSpace(c.Param("id"))
	if targetID == "" {
		response.Error(c, appErrors.NewBadRequest("user id is required"))
		return
	}

	if err := h.flow.Deactivate(c.Request.Context(), targetID, requestMeta(c)); err != nil {
		if errors.Is(err, iauth.ErrUserNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}
