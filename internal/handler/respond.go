package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/partner-gateway-service/internal/httputil"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the standard JSON error response body.
type ErrorResponse = httputil.ErrorResponse

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.RespondJSON(w, status, data)
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	httputil.RespondError(w, status, code, message)
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// DecodeJSON decodes the request body into v. On failure it writes a 400 and
// returns false. An empty body is accepted when allowEmpty is set.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
	return false
}
