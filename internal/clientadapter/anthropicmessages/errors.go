package anthropicmessages

import (
	"net/http"

	"github.com/florianilch/clawd/internal/clientadapter"
)

// ErrorResponse is the Anthropic error envelope: {"type":"error","error":{...}}.
// It is both the JSON body of failed requests and the payload of the SSE error event.
type ErrorResponse struct {
	Type string      `json:"type"`
	Err  ErrorDetail `json:"error"`

	status int
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Compile-time check that ErrorResponse implements clientadapter.ErrorEnvelope
var _ clientadapter.ErrorEnvelope = (*ErrorResponse)(nil)

func (e *ErrorResponse) Error() string {
	return e.Err.Message
}

// StatusCode returns the HTTP status to send with the envelope.
func (e *ErrorResponse) StatusCode() int {
	return e.status
}

// TranslateError shapes any failure as an Anthropic error envelope.
func (a *Adapter) TranslateError(err error) clientadapter.ErrorEnvelope {
	return newErrorResponse(err)
}

func newErrorResponse(err error) *ErrorResponse {
	status, message := clientadapter.StatusOf(err)
	return &ErrorResponse{
		Type: "error",
		Err: ErrorDetail{
			Type:    errorType(status),
			Message: message,
		},
		status: status,
	}
}

// errorType maps HTTP status codes to Anthropic error types.
func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case 529:
		return "overloaded_error"
	default:
		return "api_error"
	}
}
