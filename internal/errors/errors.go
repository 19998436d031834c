package errors

import (
	"errors"
)

// Common error types for the admin client. Callers wrap them with
// github.com/pkg/errors and match them with errors.Is.
var (
	// Token errors
	ErrNoAccessToken    = errors.New("no access token")
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrInvalidTokenPair = errors.New("invalid token pair")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrLoginInProgress  = errors.New("login already in progress")

	// Storage errors
	ErrUnknownStorage = errors.New("unknown token storage")

	// General errors
	ErrMissingDependency = errors.New("missing dependency")
)
