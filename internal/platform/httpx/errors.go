package httpx

import (
	"errors"
	"net/http"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// RespondError maps taxonomy errors to HTTP responses using RFC7807. The
// mapped kind and a safe message are the only detail surfaced to callers.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrTenantMismatch):
		Problem(w, http.StatusForbidden, "Tenant Mismatch", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrDependencyExists):
		Problem(w, http.StatusConflict, "Dependency Exists", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrStorageUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "storage backend unavailable")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
