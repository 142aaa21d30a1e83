package httpx

import (
	"errors"
	"net/http"

	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/internal/shared"
)

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case db.IsUnavailable(err):
		Error(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
