package service

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/httputil"
)

var kindStatus = map[ErrorKind]int{
	ErrBadRequest:      http.StatusBadRequest,
	ErrUnauthorized:    http.StatusUnauthorized,
	ErrForbidden:       http.StatusForbidden,
	ErrNotFound:        http.StatusNotFound,
	ErrConflict:        http.StatusConflict,
	ErrTooManyRequests: http.StatusTooManyRequests,
	ErrInternal:        http.StatusInternalServerError,
	ErrUnavailable:     http.StatusServiceUnavailable,
}

// HTTPStatus is the response status for errors of kind k.
func (k ErrorKind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError renders err. Errors that are not a *Error are logged and
// reported as a generic 500 so internals never reach the client.
func RespondError(w http.ResponseWriter, err error) {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		log.Error().Err(err).Msg("unhandled service error")
		httputil.RespondError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	status := svcErr.Kind.HTTPStatus()
	if len(svcErr.Fields) > 0 {
		httputil.RespondFieldErrors(w, status, svcErr.Code, svcErr.Message, svcErr.Fields)
		return
	}
	httputil.RespondError(w, status, svcErr.Code, svcErr.Message)
}
