// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/bestshop/bestshop/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Infrastructure failures are reported as a generic message; the detail
// belongs in server logs, never in the response body.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is incorrect")
	case errors.Is(err, shared.ErrDuplicateEmail):
		Problem(w, http.StatusConflict, "Duplicate Email", "email already registered, please use a different email")
	case errors.Is(err, shared.ErrTokenExpired):
		Problem(w, http.StatusGone, "Token Expired", "the link has expired, please request a new one")
	case errors.Is(err, shared.ErrTokenConsumed):
		Problem(w, http.StatusConflict, "Already Verified", "this link was already used")
	case errors.Is(err, shared.ErrTokenNotFound), errors.Is(err, shared.ErrTokenMismatch):
		Problem(w, http.StatusNotFound, "Invalid Link", "the link is invalid or no longer active")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, shared.ErrStoreUnavailable), errors.Is(err, shared.ErrNotifierUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "please try again later")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
