package httpx

import (
	"errors"
	"net/http"

	"github.com/inkpress/inkpress/internal/shared"
)

// StatusFor maps domain errors to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrSelfDeletion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrCSRFTokenMissing),
		errors.Is(err, shared.ErrCSRFTokenMismatch):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
