package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/atriumhq/atrium/internal/auth"
	apperrors "github.com/atriumhq/atrium/pkg/errors"
	"github.com/atriumhq/atrium/pkg/response"
)

const (
	CtxUserIDKey       = "userID"
	CtxSessionTokenKey = "sessionToken"
)

// Auth enforces bearer-token authentication against the session store. Every
// request revalidates against persisted state, so a revoked session stops
// working on the very next request.
func Auth(sessions *iauth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, apperrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		userID, err := sessions.Validate(token)
		if err != nil {
			if !errors.Is(err, iauth.ErrSessionInvalid) {
				response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
				c.Abort()
				return
			}
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Set(CtxSessionTokenKey, token)

		c.Next()
	}
}

// UserID extracts the authenticated user id set by Auth.
func UserID(c *gin.Context) (string, bool) {
	id, ok := c.Get(CtxUserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := id.(string)
	return userID, ok && userID != ""
}

// SessionToken extracts the bearer token set by Auth.
func SessionToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxSessionTokenKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok && token != ""
}
