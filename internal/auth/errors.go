package auth

import "errors"

var (
	// Credential failures. Callers present all of these to clients as one
	// uniform "invalid credentials" message; the distinction exists for
	// audit and metrics only.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountInactive    = errors.New("auth: account inactive")

	// Access token failures. Expired is separated from invalid so callers
	// can prompt a refresh on expiry but not on tampering.
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")

	// Session and refresh lifecycle failures.
	ErrSessionRevoked = errors.New("auth: session revoked or expired")
	ErrReuseDetected  = errors.New("auth: refresh token reuse detected")
	ErrForbiddenRole  = errors.New("auth: role not available to user")
	ErrThrottled      = errors.New("auth: too many attempts")
	ErrNotFound       = errors.New("auth: not found")

	// ErrStoreUnavailable marks retryable infrastructure failures (store
	// timeouts, connection loss). Never an authentication verdict.
	ErrStoreUnavailable = errors.New("auth: store unavailable")
)
