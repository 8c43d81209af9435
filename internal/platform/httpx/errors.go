// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// Sentinel errors for transport-level failures.
var (
	ErrBadRequest = errors.New("bad request")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		verr *shared.ValidationError
		cerr *shared.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: verr.Error(),
			Errors: verr.Fields,
		})
	case errors.Is(err, ErrBadRequest), errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &cerr):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:     "Conflict",
			Status:    http.StatusConflict,
			Detail:    cerr.Error(),
			Conflicts: cerr.Conflicts,
		})
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIllegalTransition):
		Problem(w, http.StatusConflict, "Illegal Transition", err.Error())
	case errors.Is(err, shared.ErrFinancialInvariant):
		Problem(w, http.StatusUnprocessableEntity, "Financial Invariant Violated", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
