package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure. It deliberately covers
	// both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenNotFound indicates no live token exists for the email.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired indicates the token is past its expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMismatch indicates the presented token differs from the stored one.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrTokenConsumed indicates the token was already redeemed.
	ErrTokenConsumed = errors.New("token already consumed")
	// ErrStoreUnavailable indicates the data store could not serve the request.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotifierUnavailable indicates outbound mail could not be dispatched.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
