package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageIncludesInternal(t *testing.T) {
	err := ErrInternalServer.WithInternal(stderrors.New("db down"))
	require.Contains(t, err.Error(), "db down")
	require.ErrorIs(t, err, err.Internal)

	// The shared sentinel is untouched.
	require.Nil(t, ErrInternalServer.Internal)
}

func TestFromErrorPassesThroughAppErrors(t *testing.T) {
	appErr := FromError(ErrInvalidCredentials)
	require.Equal(t, ErrInvalidCredentials, appErr)

	wrapped := ErrNotFound.WithInternal(stderrors.New("missing row"))
	require.Equal(t, wrapped, FromError(wrapped))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(stderrors.New("boom"))
	require.Equal(t, ErrInternalServer.Code, appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	require.Contains(t, appErr.Error(), "boom")

	require.Nil(t, FromError(nil))
}

func TestUniformSecurityMessages(t *testing.T) {
	// Client-facing rejections must not leak which check failed.
	require.Equal(t, "Invalid email or password", ErrInvalidCredentials.Message)
	require.Equal(t, "Invalid code", ErrInvalidCode.Message)
	require.Equal(t, "Access denied", ErrNotInvited.Message)
	require.Equal(t, http.StatusUnauthorized, ErrInvalidCredentials.StatusCode)
	require.Equal(t, http.StatusUnauthorized, ErrInvalidCode.StatusCode)
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("email is required")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
	require.Equal(t, "email is required", err.Message)
}
