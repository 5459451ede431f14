package handlers

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/middleware"
	appErrors "github.com/atriumhq/atrium/pkg/errors"
	"github.com/atriumhq/atrium/pkg/response"
)

// requestMeta captures client context for auditing and session records.
func requestMeta(c *gin.Context) iauth.RequestMeta {
	return iauth.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// currentUserID extracts the authenticated user id, writing a 401 response
// when the auth middleware did not run.
func currentUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return "", false
	}
	return userID, true
}

// sessionTokenOrFail extracts the bearer token recorded by the auth
// middleware, writing a 401 response when absent.
func sessionTokenOrFail(c *gin.Context) (string, bool) {
	token, ok := middleware.SessionToken(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return "", false
	}
	return token, true
}
