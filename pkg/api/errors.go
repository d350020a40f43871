package api

import (
	"errors"
	"net/http"

	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/menuboard/menuboard/pkg/scheduler"
)

// ErrorFor maps a service or scheduler error to an HTTP status and error
// object. Persistence and unknown errors do not leak their cause.
//
//	billing.ValidationError    400 validation_error (with field)
//	billing.ErrNotFound        404 not_found
//	scheduler.ErrRunInProgress 409 conflict
//	billing.PersistenceError   500 persistence_error
func ErrorFor(err error) (int, httputil.APIError) {
	var ve *billing.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, httputil.APIError{Code: httputil.CodeValidation, Message: ve.Message, Field: ve.Field}
	case billing.IsNotFound(err):
		return http.StatusNotFound, httputil.APIError{Code: httputil.CodeNotFound, Message: err.Error()}
	case errors.Is(err, scheduler.ErrRunInProgress):
		return http.StatusConflict, httputil.APIError{Code: httputil.CodeConflict, Message: err.Error()}
	case billing.IsPersistence(err):
		return http.StatusInternalServerError, httputil.APIError{Code: httputil.CodePersistence, Message: "failed to persist subscription change"}
	default:
		return http.StatusInternalServerError, httputil.APIError{Code: httputil.CodeInternal, Message: "internal server error"}
	}
}
